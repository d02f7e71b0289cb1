//go:build darwin

package auth

import (
	"fmt"
	"os/exec"
	"strings"
)

// osascriptPrompter asks for Touch ID or the account password.
type osascriptPrompter struct{}

func platformPrompter() Prompter { return osascriptPrompter{} }

func (osascriptPrompter) Prompt(reason string) error {
	script := fmt.Sprintf(`do shell script "true" with administrator privileges with prompt %q`,
		strings.ReplaceAll(reason, `"`, `'`))
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("osascript: %w", err)
	}
	return nil
}

func (osascriptPrompter) Available() bool { return true }
