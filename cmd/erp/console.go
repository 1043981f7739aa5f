package main

import (
	"context"

	"github.com/pterm/pterm"

	"github.com/wrcelo/erpwebui/pkg/notify"
)

// newConsoleNotifier prints session events for the operator.
func newConsoleNotifier() notify.Notifier {
	return notify.NotifierFunc(func(_ context.Context, ev notify.Event) error {
		switch ev.Type {
		case notify.TypeExpired:
			pterm.Warning.Println("Seu login expirou! Execute 'erp login' para entrar novamente.")
		case notify.TypeRejected:
			pterm.Error.Println("Não foi possível validar a sessão: " + ev.Message)
		}
		return nil
	})
}

// withSpinner runs fn while showing a spinner with text.
func withSpinner(text string, fn func() error) error {
	spinner, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	if err != nil {
		// No terminal; run without the spinner.
		return fn()
	}
	fnErr := fn()
	_ = spinner.Stop()
	return fnErr
}
