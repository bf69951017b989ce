// Package drive keeps the registry of named roots. The drive list is an
// immutable value; every change produces a new list that is committed by
// compare-and-swap against the list the caller started from.
package drive

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Type distinguishes per-user drives from shared ones.
type Type string

const (
	Private Type = "private"
	Public  Type = "public"
)

// Drive is one registry record.
type Drive struct {
	UUID string `json:"uuid" validate:"required,uuid"`
	Type Type   `json:"type" validate:"oneof=private public"`

	// private
	Owner string `json:"owner,omitempty" validate:"omitempty,uuid"`
	Tag   string `json:"tag,omitempty" validate:"max=64"`

	// public
	Writelist []string `json:"writelist,omitempty" validate:"omitempty,dive,uuid"`
	Readlist  []string `json:"readlist,omitempty" validate:"omitempty,dive,uuid"`
	Label     string   `json:"label,omitempty" validate:"max=255"`
}

// IsPublic reports whether d is a public drive.
func (d Drive) IsPublic() bool { return d.Type == Public }

func (d Drive) clone() Drive {
	d.Writelist = slices.Clone(d.Writelist)
	d.Readlist = slices.Clone(d.Readlist)
	return d
}

// PublicProps are the caller-settable properties of a public drive. Nil
// fields are left unchanged by an update.
type PublicProps struct {
	Writelist []string `json:"writelist,omitempty" validate:"omitempty,dive,uuid"`
	Readlist  []string `json:"readlist,omitempty" validate:"omitempty,dive,uuid"`
	Label     *string  `json:"label,omitempty" validate:"omitempty,max=255"`
}

var validate = validator.New()

// Validate checks d against the record rules.
func Validate(d Drive) error {
	if err := validate.Struct(d); err != nil {
		return formatValidationError(err)
	}
	if d.Type == Private && d.Owner == "" {
		return fmt.Errorf("drive %s: private drive requires an owner", d.UUID)
	}
	return nil
}

// ValidateProps checks public drive properties.
func ValidateProps(p PublicProps) error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// NewPrivate returns a fresh private drive for owner.
func NewPrivate(owner, tag string) Drive {
	return Drive{UUID: uuid.New().String(), Type: Private, Owner: owner, Tag: tag}
}

// NewPublic returns a fresh public drive with props applied.
func NewPublic(p PublicProps) Drive {
	return Drive{UUID: uuid.New().String(), Type: Public}.Apply(p)
}

// Apply returns a copy of d with the non-nil props set.
func (d Drive) Apply(p PublicProps) Drive {
	d = d.clone()
	if p.Writelist != nil {
		d.Writelist = slices.Clone(p.Writelist)
	}
	if p.Readlist != nil {
		d.Readlist = slices.Clone(p.Readlist)
	}
	if p.Label != nil {
		d.Label = *p.Label
	}
	return d
}

func formatValidationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// List is an immutable ordered sequence of drives. Accessors return copies.
type List struct {
	drives []Drive
}

// NewList returns a list holding copies of drives.
func NewList(drives ...Drive) *List {
	l := &List{drives: make([]Drive, len(drives))}
	for i, d := range drives {
		l.drives[i] = d.clone()
	}
	return l
}

// Len returns the number of drives.
func (l *List) Len() int { return len(l.drives) }

// At returns the i-th drive.
func (l *List) At(i int) Drive { return l.drives[i].clone() }

// All returns the drives in order.
func (l *List) All() []Drive {
	out := make([]Drive, len(l.drives))
	for i, d := range l.drives {
		out[i] = d.clone()
	}
	return out
}

// Index returns the position of the drive with id, or -1.
func (l *List) Index(id string) int {
	return slices.IndexFunc(l.drives, func(d Drive) bool { return d.UUID == id })
}

// Get returns the drive with id.
func (l *List) Get(id string) (Drive, bool) {
	i := l.Index(id)
	if i < 0 {
		return Drive{}, false
	}
	return l.At(i), true
}

// With returns a new list with d appended.
func (l *List) With(d Drive) *List {
	next := NewList(l.drives...)
	next.drives = append(next.drives, d.clone())
	return next
}

// Replace returns a new list with the i-th drive replaced by d.
func (l *List) Replace(i int, d Drive) *List {
	next := NewList(l.drives...)
	next.drives[i] = d.clone()
	return next
}

// Without returns a new list without the drive with id.
func (l *List) Without(id string) *List {
	next := NewList(l.drives...)
	next.drives = slices.DeleteFunc(next.drives, func(d Drive) bool { return d.UUID == id })
	return next
}
