package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a plan catalog:
//
//	plans:
//	  - id: basic
//	    name: Basic
//	    limits: {maxUsers: 25, maxEvents: 100, maxStorage: -1, apiCallsPerMonth: 50000}
//	    features: {customDomain: true}
type catalogFile struct {
	Plans []*Plan `yaml:"plans" validate:"required,min=1,dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadCatalog parses a YAML catalog from r and validates every plan.
func LoadCatalog(r io.Reader) (*StaticCatalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty catalog", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("plan: decode catalog: %w", err)
	}

	if err := Validate(f.Plans...); err != nil {
		return nil, err
	}

	return NewStaticCatalog(f.Plans...), nil
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plan: open catalog: %w", err)
	}
	defer fh.Close()

	return LoadCatalog(fh)
}

// Validate checks each plan's structural constraints and that ids are unique.
func Validate(plans ...*Plan) error {
	if err := validate.Struct(catalogFile{Plans: plans}); err != nil {
		return describeValidation(err)
	}

	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate plan id %q", ErrInvalidPlan, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(msgs, "; "))
}
