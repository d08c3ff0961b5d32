package commands

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNotInteractive = errors.New("confirmation requires a terminal; pass --auto-approve")

// isInteractive reports whether both command streams are terminals.
func isInteractive(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(out.Fd()))
}

// confirm asks a yes/no question. An aborted prompt counts as "no".
func confirm(cmd *cobra.Command, title string) (bool, error) {
	if !isInteractive(cmd) {
		return false, errNotInteractive
	}

	var value bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Affirmative("Apply").Negative("Cancel").Value(&value),
	)).
		WithInput(cmd.InOrStdin()).
		WithOutput(cmd.OutOrStdout()).
		WithShowHelp(false)

	err := form.Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return value, err
}
