//go:build !linux && !darwin && !windows

package auth

type noPrompter struct{}

func platformPrompter() Prompter { return noPrompter{} }

func (noPrompter) Prompt(string) error { return ErrUnavailable }

func (noPrompter) Available() bool { return false }
