// Package redact masks sensitive fields of ledger images on the way out.
// Stored records are never modified; every call returns copies.
package redact

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"alumni/internal/audit"
	pstrings "alumni/pkg/platform/strings"
)

// Policy says what happens to a matched field.
type Policy string

const (
	// PolicyMask replaces the value with the marker.
	PolicyMask Policy = "mask"
	// PolicyOmit drops the field from the image entirely.
	PolicyOmit Policy = "omit"
)

// Class groups fields by sensitivity. Classes only affect reporting.
type Class string

const (
	ClassCredential Class = "credential"
	ClassFinancial  Class = "financial"
	ClassPersonal   Class = "personal"
)

// DefaultMarker replaces masked values.
const DefaultMarker = "[REDACTED]"

// Rule configures one field.
type Rule struct {
	Field  string `yaml:"field"`
	Class  Class  `yaml:"class"`
	Policy Policy `yaml:"policy"`
}

// Config is the redaction policy file format.
type Config struct {
	Marker string `yaml:"marker"`
	Rules  []Rule `yaml:"rules"`
}

// DefaultRules covers the credential and financial columns of the governed tables.
func DefaultRules() []Rule {
	return []Rule{
		{Field: "password", Class: ClassCredential, Policy: PolicyMask},
		{Field: "password_hash", Class: ClassCredential, Policy: PolicyMask},
		{Field: "otp_secret", Class: ClassCredential, Policy: PolicyMask},
		{Field: "token", Class: ClassCredential, Policy: PolicyMask},
		{Field: "secret", Class: ClassCredential, Policy: PolicyMask},
		{Field: "nomor_rekening", Class: ClassFinancial, Policy: PolicyMask},
		{Field: "account_number", Class: ClassFinancial, Policy: PolicyMask},
		{Field: "card_number", Class: ClassFinancial, Policy: PolicyMask},
		{Field: "nik", Class: ClassPersonal, Policy: PolicyMask},
	}
}

// Filter applies a fixed rule set. It is safe for concurrent use.
type Filter struct {
	marker string
	rules  map[string]Rule
}

// New builds a filter from cfg. Field names match case-insensitively; later
// rules for the same field win.
func New(cfg Config) (*Filter, error) {
	f := &Filter{marker: cfg.Marker, rules: make(map[string]Rule, len(cfg.Rules))}
	if f.marker == "" {
		f.marker = DefaultMarker
	}
	for _, r := range cfg.Rules {
		name := strings.ToLower(strings.TrimSpace(r.Field))
		if name == "" {
			return nil, fmt.Errorf("redaction rule without field name")
		}
		if r.Policy == "" {
			r.Policy = PolicyMask
		}
		if r.Policy != PolicyMask && r.Policy != PolicyOmit {
			return nil, fmt.Errorf("field %q: unknown policy %q", r.Field, r.Policy)
		}
		r.Field = name
		f.rules[name] = r
	}
	return f, nil
}

// Default returns a filter with DefaultRules.
func Default() *Filter {
	f, _ := New(Config{Rules: DefaultRules()})
	return f
}

// FromYAML reads a Config document and appends its rules to the defaults.
func FromYAML(r io.Reader) (*Filter, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode redaction policy: %w", err)
	}
	cfg.Rules = append(DefaultRules(), cfg.Rules...)
	return New(cfg)
}

// Load builds the filter from the optional policy file plus extra field names
// that are masked with the default policy.
func Load(path string, extraFields []string) (*Filter, error) {
	cfg := Config{Rules: DefaultRules()}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open redaction policy: %w", err)
		}
		defer file.Close()
		fromFile, err := FromYAML(file)
		if err != nil {
			return nil, err
		}
		cfg.Marker = fromFile.marker
		cfg.Rules = fromFile.Rules()
	}
	for _, field := range pstrings.DedupeAndTrimLower(extraFields) {
		cfg.Rules = append(cfg.Rules, Rule{Field: field, Class: ClassPersonal, Policy: PolicyMask})
	}
	return New(cfg)
}

// Rules returns the effective rules.
func (f *Filter) Rules() []Rule {
	out := make([]Rule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out
}

// Marker returns the replacement value for masked fields.
func (f *Filter) Marker() string { return f.marker }

// Image returns a redacted copy of img.
func (f *Filter) Image(img audit.Image) audit.Image {
	if img == nil {
		return nil
	}
	out := img.Clone()
	for k := range out {
		rule, ok := f.rules[strings.ToLower(k)]
		if !ok {
			continue
		}
		switch rule.Policy {
		case PolicyOmit:
			delete(out, k)
		default:
			if out[k] != nil {
				out[k] = f.marker
			}
		}
	}
	return out
}

// Record returns a copy of rec with both images redacted. Changed field names
// are kept so the ledger still shows that a secret changed.
func (f *Filter) Record(rec audit.MutationRecord) audit.MutationRecord {
	rec.OldImage = f.Image(rec.OldImage)
	rec.NewImage = f.Image(rec.NewImage)
	rec.ChangedFields = append([]string(nil), rec.ChangedFields...)
	return rec
}

// Snapshot returns a copy of snap with both images redacted.
func (f *Filter) Snapshot(snap audit.RowSnapshot) audit.RowSnapshot {
	snap.OldImage = f.Image(snap.OldImage)
	snap.NewImage = f.Image(snap.NewImage)
	return snap
}
