package main

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/widget"
)

// CaptionEntry is a multi-line entry that submits on Enter and inserts a
// newline on Shift+Enter. Unlike a chat box it submits empty text too, since
// a post may have no caption.
type CaptionEntry struct {
	widget.Entry
	OnSubmit func(string)
}

func NewCaptionEntry(placeholder string) *CaptionEntry {
	e := &CaptionEntry{}
	e.ExtendBaseWidget(e)
	e.MultiLine = true
	e.Wrapping = fyne.TextWrapWord
	e.SetPlaceHolder(placeholder)
	e.SetMinRowsVisible(3)
	return e
}

func (e *CaptionEntry) TypedKey(key *fyne.KeyEvent) {
	if key.Name != fyne.KeyReturn && key.Name != fyne.KeyEnter {
		e.Entry.TypedKey(key)
		return
	}

	// On mobile there is no desktop driver; Enter always submits there.
	shiftHeld := false
	if drv, ok := fyne.CurrentApp().Driver().(desktop.Driver); ok {
		shiftHeld = drv.CurrentKeyModifiers()&fyne.KeyModifierShift != 0
	}
	if shiftHeld {
		e.Entry.TypedKey(key)
		return
	}
	if e.OnSubmit != nil {
		e.OnSubmit(e.Text)
	}
}

func (e *CaptionEntry) Keyboard() mobile.KeyboardType {
	return mobile.DefaultKeyboard
}
