package types

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

var optionsValidator = validator.New()

// Options is the immutable configuration of one run
type Options struct {
	FromTag       string       `validate:"required"`
	ToTag         string       `validate:"required"`
	DBType        DBType       `validate:"required,oneof=mongo postgres"`
	Provider      ProviderKind `validate:"required,oneof=compose cluster"`
	Stage         Stage
	TestFilter    string
	TestDir       string `validate:"required"`
	WithDowngrade bool
}

// Validate checks the options before any infrastructure is touched
func (o Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if o.Stage != "" {
		if _, err := ParseStage(string(o.Stage)); err != nil {
			return err
		}
	}
	return nil
}

// Stages returns the single requested stage, or the whole pipeline
func (o Options) Stages() []Stage {
	if o.Stage != "" {
		if st, err := ParseStage(string(o.Stage)); err == nil {
			return []Stage{st}
		}
		return []Stage{o.Stage}
	}
	return Pipeline(o.WithDowngrade)
}

// IsForwardUpgrade reports whether FromTag sorts before ToTag.
// ok is false when either tag is not a semantic version.
func (o Options) IsForwardUpgrade() (forward bool, ok bool) {
	from, err := semver.NewVersion(o.FromTag)
	if err != nil {
		return false, false
	}
	to, err := semver.NewVersion(o.ToTag)
	if err != nil {
		return false, false
	}
	return from.LessThan(to), true
}
