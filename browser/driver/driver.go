// Package driver defines the browser-control boundary consumed by the session
// layer and provides a chromedp-backed implementation.
package driver

import (
	"context"
	"time"
)

// Navigator loads pages.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
}

// ElementDriver addresses elements by normalized selector strings.
type ElementDriver interface {
	// WaitForExist blocks until selector matches at least one node or timeout elapses.
	WaitForExist(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForVisible blocks until selector is visible or timeout elapses.
	WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error
	IsExisting(ctx context.Context, selector string) (bool, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	MoveTo(ctx context.Context, selector string) error
	ScrollIntoView(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	DoubleClick(ctx context.Context, selector string) error
	GetValue(ctx context.Context, selector string) (string, error)
	SetValue(ctx context.Context, selector, value string) error
	ClearValue(ctx context.Context, selector string) error
	GetAttribute(ctx context.Context, selector, name string) (string, error)
	GetCSS(ctx context.Context, selector, property string) (string, error)
	GetTagName(ctx context.Context, selector string) (string, error)
	GetText(ctx context.Context, selector string) (string, error)
	CountElements(ctx context.Context, selector string) (int, error)
}

// TabDriver enumerates and switches tabs/windows.
type TabDriver interface {
	CurrentTab(ctx context.Context) (string, error)
	Tabs(ctx context.Context) ([]string, error)
	SwitchTab(ctx context.Context, id string) error
	CloseTab(ctx context.Context, id string) error
}

// AlertDriver handles JavaScript dialogs. AlertText fails when no dialog is open.
type AlertDriver interface {
	AlertText(ctx context.Context) (string, error)
	AcceptAlert(ctx context.Context) error
	DismissAlert(ctx context.Context) error
}

// ScriptDriver evaluates opaque scripts in the page.
type ScriptDriver interface {
	// Execute evaluates script synchronously and returns its JSON-decoded result.
	Execute(ctx context.Context, script string, args ...any) (any, error)
	// ExecuteAsync evaluates a callback-style script; the last argument passed
	// to the script is a done callback whose argument becomes the result.
	ExecuteAsync(ctx context.Context, script string, args ...any) (any, error)
}

// Screenshotter captures the visible viewport.
type Screenshotter interface {
	// Screenshot returns a base64-encoded PNG payload.
	Screenshot(ctx context.Context) (string, error)
}

// Driver is the full command surface of one browser session.
type Driver interface {
	Navigator
	ElementDriver
	TabDriver
	AlertDriver
	ScriptDriver
	Screenshotter

	SessionID() string
	Close() error
}
