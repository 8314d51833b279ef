package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func dayName(i int) string {
	if i < 0 || i >= len(dayNames) {
		return "?"
	}
	return dayNames[i]
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s", name)
	}
	return args[0], nil
}

func (a *App) printEntry(e rpc.Entry) {
	mood := e.Mood
	if mood == "" {
		mood = "-"
	}
	fmt.Fprintf(a.out, "%s  %s %s  mood: %s  media: %d\n", e.ID, e.Date, dayName(e.DayOfWeek), mood, e.MediaCount)
}

func (a *App) NewEntry(ctx context.Context, _ []string) error {
	date, err := GetSimpleText(a.reader, "Date YYYY-MM-DD (empty for today)", a.out)
	if err != nil {
		return err
	}
	if date == "" {
		date = time.Now().Format(rpc.DateLayout)
	}
	title, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	if title == "" {
		return errors.New("entry title is empty")
	}
	mood, err := GetSimpleText(a.reader, "Mood (optional)", a.out)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Entry text", a.out)
	if err != nil {
		return err
	}
	if content == "" {
		return errors.New("entry text is empty")
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.CreateEntry(ctx, &rpc.CreateEntryRequest{Date: date, Title: title, Mood: mood, Content: content})
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, "Saved ")
	a.printEntry(resp.Entry)
	return nil
}

func (a *App) ReadEntry(ctx context.Context, args []string) error {
	id, err := oneArg(args, "read <id>")
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.ReadEntry(ctx, id)
	if err != nil {
		return err
	}
	a.printEntry(resp.Entry)
	fmt.Fprintln(a.out, "#", resp.Title)
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, resp.Content)
	return nil
}

func (a *App) EditEntry(ctx context.Context, args []string) error {
	id, err := oneArg(args, "edit <id>")
	if err != nil {
		return err
	}

	rctx, cancel := a.call(ctx)
	current, err := a.api.ReadEntry(rctx, id)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "#", current.Title)
	fmt.Fprintln(a.out, current.Content)
	fmt.Fprintln(a.out)

	content, err := GetMultiline(a.reader, "New text (empty keeps the current text)", a.out)
	if err != nil {
		return err
	}
	if content == "" {
		content = current.Content
	}
	req := &rpc.UpdateEntryRequest{ID: id, Content: content}

	title, err := GetSimpleText(a.reader, fmt.Sprintf("Title [%s] (empty keeps)", current.Title), a.out)
	if err != nil {
		return err
	}
	if title != "" {
		req.Title = &title
	}

	mood, err := GetSimpleText(a.reader, fmt.Sprintf("Mood [%s] (empty keeps, '-' clears)", current.Entry.Mood), a.out)
	if err != nil {
		return err
	}
	switch mood {
	case "":
	case "-":
		req.Mood = new(string)
	default:
		req.Mood = &mood
	}

	ctx, cancel = a.call(ctx)
	defer cancel()
	resp, err := a.api.UpdateEntry(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, "Updated ")
	a.printEntry(resp.Entry)
	return nil
}

func (a *App) DeleteEntry(ctx context.Context, args []string) error {
	id, err := oneArg(args, "delete <id>")
	if err != nil {
		return err
	}
	answer, err := GetSimpleText(a.reader, "Delete entry "+id+"? Attachments are kept. (y/N)", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") {
		return nil
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.DeleteEntry(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}

// parseListArgs reads key=value filters for list.
func parseListArgs(args []string) (*rpc.ListEntriesRequest, error) {
	req := &rpc.ListEntriesRequest{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch k {
		case "from":
			req.From = v
		case "to":
			req.To = v
		case "mood":
			req.Mood = v
		case "dow", "limit", "offset":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			switch k {
			case "dow":
				req.DayOfWeek = &n
			case "limit":
				req.Limit = n
			default:
				req.Offset = n
			}
		default:
			return nil, fmt.Errorf("unknown filter %q", k)
		}
	}
	return req, nil
}

func (a *App) List(ctx context.Context, args []string) error {
	req, err := parseListArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.ListEntries(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Entries) == 0 {
		fmt.Fprintln(a.out, "No entries")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDAY\tMOOD\tMEDIA")
	for _, e := range resp.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Date, dayName(e.DayOfWeek), e.Mood, e.MediaCount)
	}
	return tw.Flush()
}

func (a *App) Calendar(ctx context.Context, args []string) error {
	month := time.Now()
	if len(args) > 0 {
		m, err := time.Parse("2006-01", args[0])
		if err != nil {
			return fmt.Errorf("usage: calendar [YYYY-MM]")
		}
		month = m
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.Calendar(ctx, &rpc.CalendarRequest{Year: month.Year(), Month: int(month.Month())})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, month.Format("January 2006"))
	if len(resp.Days) == 0 {
		fmt.Fprintln(a.out, "No entries")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tENTRIES\tMEDIA")
	for _, d := range resp.Days {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Date, d.EntryCount, d.MediaCount)
	}
	return tw.Flush()
}

func (a *App) Moods(ctx context.Context, _ []string) error {
	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.MoodStats(ctx)
	if err != nil {
		return err
	}

	moods := make([]string, 0, len(resp.Distribution))
	for m := range resp.Distribution {
		moods = append(moods, m)
	}
	sort.Slice(moods, func(i, j int) bool {
		ci, cj := resp.Distribution[moods[i]], resp.Distribution[moods[j]]
		if ci != cj {
			return ci > cj
		}
		return moods[i] < moods[j]
	})

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, m := range moods {
		fmt.Fprintf(tw, "%s\t%d\n", m, resp.Distribution[m])
	}
	fmt.Fprintf(tw, "total\t%d\n", resp.Total)
	return tw.Flush()
}
