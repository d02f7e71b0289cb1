//go:build linux

package auth

import (
	"errors"
	"fmt"
	"os/exec"
)

// polkitPrompter confirms through pkexec, or a zenity password dialog when
// polkit is missing.
type polkitPrompter struct {
	tool string
}

func platformPrompter() Prompter {
	for _, tool := range []string{"pkexec", "zenity"} {
		if _, err := exec.LookPath(tool); err == nil {
			return &polkitPrompter{tool: tool}
		}
	}
	return &polkitPrompter{}
}

func (p *polkitPrompter) Prompt(reason string) error {
	switch p.tool {
	case "pkexec":
		if err := exec.Command("pkexec", "true").Run(); err != nil {
			return fmt.Errorf("pkexec: %w", err)
		}
		return nil
	case "zenity":
		out, err := exec.Command("zenity", "--password", "--title=tablemoins", "--text="+reason).Output()
		if err != nil {
			return fmt.Errorf("zenity: %w", err)
		}
		if len(out) == 0 {
			return errors.New("cancelled")
		}
		return nil
	}
	return ErrUnavailable
}

func (p *polkitPrompter) Available() bool { return p.tool != "" }
