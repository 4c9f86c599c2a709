package content

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/media"
)

const (
	MaxCommentLength = 1000

	msgRequired      = "This field is required."
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	msgTooLong       = "Ensure this value has at most 1000 characters."
)

// PostForm is the create/edit post input. Group holds a group id or "".
// Image is nil when no file was uploaded; ClearImage drops the current image on edit.
type PostForm struct {
	Text       string
	Group      string
	Image      *media.Upload
	ClearImage bool
}

type CommentForm struct {
	Text string
}

// clean checks the fields that need no store lookup.
func (f PostForm) clean(v *apperr.ValidationError) (text string, groupID *int64, img *media.Checked) {
	text = strings.TrimSpace(f.Text)
	if text == "" {
		v.Add("text", msgRequired)
	}

	if raw := strings.TrimSpace(f.Group); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			v.Add("group", msgInvalidChoice)
		} else {
			groupID = &id
		}
	}

	if f.Image != nil {
		checked, err := media.Validate(*f.Image)
		if err != nil {
			v.Add("image", media.InvalidImageMessage)
		} else {
			img = &checked
		}
	}
	return text, groupID, img
}

func (f CommentForm) clean(v *apperr.ValidationError) string {
	text := strings.TrimSpace(f.Text)
	switch {
	case text == "":
		v.Add("text", msgRequired)
	case utf8.RuneCountInString(text) > MaxCommentLength:
		v.Add("text", msgTooLong)
	}
	return text
}
