package cli

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/diarykeeper/internal/filex"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

// mimeTypeOf guesses from the extension first, then from the content.
// Parameters such as charset are dropped.
func mimeTypeOf(path string, data []byte) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		t = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return "application/octet-stream"
}

// fileNameFor names a downloaded attachment after its id and type.
func fileNameFor(m rpc.Media) string {
	exts, _ := mime.ExtensionsByType(m.MimeType)
	if len(exts) == 0 {
		return m.ID + ".bin"
	}
	return m.ID + exts[0]
}

func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: attach <entry-id> <file>")
	}
	entryID, path := args[0], args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.AttachMedia(ctx, &rpc.AttachMediaRequest{
		EntryID:  entryID,
		MimeType: mimeTypeOf(path, data),
		Data:     data,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Attached %s (%s, %d bytes)\n", resp.Media.ID, resp.Media.MimeType, resp.Media.Size)
	return nil
}

func (a *App) ListMedia(ctx context.Context, args []string) error {
	entryID, err := oneArg(args, "media <entry-id>")
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.ListMedia(ctx, entryID)
	if err != nil {
		return err
	}
	if len(resp.Media) == 0 {
		fmt.Fprintln(a.out, "No attachments")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSIZE")
	for _, m := range resp.Media {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m.ID, m.MimeType, m.Size)
	}
	return tw.Flush()
}

func (a *App) SaveMedia(ctx context.Context, args []string) error {
	id, err := oneArg(args, "save <media-id>")
	if err != nil {
		return err
	}

	rctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.ReadMedia(rctx, id)
	if err != nil {
		return err
	}

	dir, err := filex.EnsureDir(a.config.MediaDir)
	if err != nil {
		return err
	}
	path, err := filex.WriteNew(dir, fileNameFor(resp.Media), resp.Data)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved to", path)
	return nil
}

func (a *App) DeleteMedia(ctx context.Context, args []string) error {
	id, err := oneArg(args, "rmmedia <media-id>")
	if err != nil {
		return err
	}
	answer, err := GetSimpleText(a.reader, "Delete attachment "+id+"? (y/N)", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") {
		return nil
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.DeleteMedia(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}
