package table

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is one descriptor table: the types of one Go package.
//
// Example:
//
//	namespace: bytes
//	package: bytes
//	types:
//	  - name: Buffer
//	    go: '*bytes.Buffer'
//	    members:
//	      - kind: constructor
//	        name: Buffer
//	        symbol: NewBufferString
//	        params:
//	          - {name: s, type: string}
//	      - kind: method
//	        name: WriteString
//	        params:
//	          - {name: s, type: string}
//	        result: int
type File struct {
	// Namespace qualifies every type name in the file.
	Namespace string `yaml:"namespace"`

	// Package is the Go import path the table was generated from.
	Package string `yaml:"package,omitempty"`

	Types []TypeSpec `yaml:"types"`
}

// TypeSpec describes one type.
type TypeSpec struct {
	Name string `yaml:"name"`

	// Go is the implementing Go type as written in source, for reference.
	Go string `yaml:"go,omitempty"`

	// Interface is set for Go interface types; they have no constructors.
	Interface bool `yaml:"interface,omitempty"`

	// Enum lists the named values of an enumeration type.
	Enum  []EnumSpec `yaml:"enum,omitempty"`
	Flags bool       `yaml:"flags,omitempty"`

	Members []MemberSpec `yaml:"members,omitempty"`
}

// EnumSpec is one enumeration constant.
type EnumSpec struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// MemberSpec describes one member. Overloads are separate entries with the
// same name and different symbols.
type MemberSpec struct {
	// Kind is constructor, method, field or property.
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`

	// Symbol is the Go name of the implementation. It defaults to Name.
	// The constructor symbol "new" allocates a zero value.
	Symbol string `yaml:"symbol,omitempty"`

	Static bool `yaml:"static,omitempty"`

	Params []ParamSpec `yaml:"params,omitempty"`

	// Result is the result type of methods and constructors.
	Result string `yaml:"result,omitempty"`

	// Type is the value type of fields and properties.
	Type string `yaml:"type,omitempty"`

	// ReadOnly fields and properties have no setter.
	ReadOnly bool `yaml:"readonly,omitempty"`

	// Getter and Setter name the methods behind a property. Getter
	// defaults to Symbol and Setter to "Set" + Symbol.
	Getter string `yaml:"getter,omitempty"`
	Setter string `yaml:"setter,omitempty"`
}

// ParamSpec describes one parameter.
type ParamSpec struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	ByRef    bool    `yaml:"byref,omitempty"`
	Variadic bool    `yaml:"variadic,omitempty"`
	Optional bool    `yaml:"optional,omitempty"`
	Default  *string `yaml:"default,omitempty"`
}

func (m MemberSpec) symbol() string {
	if m.Symbol != "" {
		return m.Symbol
	}
	return m.Name
}

// Decode reads every YAML document in r.
func Decode(r io.Reader) ([]*File, error) {
	dec := yaml.NewDecoder(r)
	var files []*File
	for {
		f := new(File)
		err := dec.Decode(f)
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode table: %w", err)
		}
		if err := f.validate(); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
}

// ReadFile decodes the tables stored at path.
func ReadFile(path string) ([]*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	files, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return files, nil
}

// Encode writes files as a YAML stream, one document per file.
func Encode(w io.Writer, files ...*File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, f := range files {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encode table %s: %w", f.Namespace, err)
		}
	}
	return enc.Close()
}

func (f *File) validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, t := range f.Types {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("namespace %s: type without a name", f.Namespace))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("type %s declared twice", t.Name))
		}
		seen[t.Name] = true
		for _, m := range t.Members {
			if m.Name == "" {
				errs = append(errs, fmt.Errorf("type %s: member without a name", t.Name))
			}
			switch m.Kind {
			case "constructor", "method", "field", "property":
			default:
				errs = append(errs, fmt.Errorf("type %s: member %s has unknown kind %q", t.Name, m.Name, m.Kind))
			}
		}
	}
	return errors.Join(errs...)
}
