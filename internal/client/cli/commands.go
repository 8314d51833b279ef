package cli

import "context"

func (a *App) commands() map[string]command {
	type fn = func(ctx context.Context, args []string) error
	public := func(f fn, usage string) command { return command{fn: f, usage: usage} }
	private := func(f fn, usage string) command { return command{fn: f, usage: usage, needAuth: true} }

	return map[string]command{
		"register": public(a.Register, "create an account"),
		"login":    public(a.Login, "authenticate"),
		"forgot":   public(a.ResetWithAnswers, "reset login password with security answers"),
		"resetkey": public(a.ResetWithRecoveryKey, "reset login password with the recovery key"),
		"logout":    private(a.Logout, "lock the diary and log out"),
		"loginpass": private(a.ChangeLoginPassword, "change the login password"),
		"recovery": private(a.SetupRecovery, "set up security questions and a recovery key"),

		"status": private(a.Status, "show whether the diary is locked"),
		"setup":  private(a.Setup, "choose the diary password"),
		"unlock": private(a.Unlock, "unlock the diary"),
		"lock":   private(a.Lock, "lock the diary"),
		"hint":   private(a.Hint, "show the diary password hint"),
		"passwd": private(a.ChangePassword, "change the diary password"),

		"new":      private(a.NewEntry, "write an entry"),
		"read":     private(a.ReadEntry, "<id> show an entry"),
		"edit":     private(a.EditEntry, "<id> rewrite an entry"),
		"delete":   private(a.DeleteEntry, "<id> delete an entry"),
		"list":     private(a.List, "[from=YYYY-MM-DD to= mood= dow=0-6 limit= offset=] list entries"),
		"calendar": private(a.Calendar, "[YYYY-MM] entries per day"),
		"moods":    private(a.Moods, "mood distribution"),

		"attach":  private(a.Attach, "<entry-id> <file> attach a file"),
		"media":   private(a.ListMedia, "<entry-id> list attachments"),
		"save":    private(a.SaveMedia, "<media-id> decrypt an attachment to disk"),
		"rmmedia": private(a.DeleteMedia, "<media-id> delete an attachment"),
	}
}
