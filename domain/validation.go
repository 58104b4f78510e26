package domain

import (
	"fmt"
	"regexp"
	"strings"

	"pairchat/errors"

	"github.com/go-playground/validator/v10"
)

const (
	MinNicknameLength = 2
	MaxNicknameLength = 20
	MinTextLength     = 1
	MaxTextLength     = 1000
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknamePattern.MatchString(fl.Field().String())
	})
	return v
}

type nicknameInput struct {
	Nickname string `validate:"min=2,max=20,nickname"`
}

type textInput struct {
	Text string `validate:"min=1,max=1000"`
}

// NormalizeNickname trims the nickname and checks its length and charset.
func NormalizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	if err := validate.Struct(nicknameInput{Nickname: nickname}); err != nil {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidNickname, nickname)
	}
	return nickname, nil
}

// NormalizeText trims message text; length is counted in characters, not bytes.
func NormalizeText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if err := validate.Struct(textInput{Text: text}); err != nil {
		return "", errors.ErrInvalidMessage
	}
	return text, nil
}
