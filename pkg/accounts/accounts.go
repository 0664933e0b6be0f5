// Package accounts maps account IDs to display names and owning projects.
package accounts

import (
	"fmt"
	"os"
	"sort"

	"github.com/DrSkyle/scantrail/pkg/finding"
	"gopkg.in/yaml.v3"
)

// Account is one entry of the directory file.
type Account struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
}

// Directory is the parsed accounts file:
//
//	accounts:
//	  - id: "123456789012"
//	    name: prod
//	    project: payments
type Directory struct {
	Accounts []Account `yaml:"accounts"`

	byID map[string]Account
}

// Load parses a directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and indexes it. Duplicate IDs are rejected.
func Parse(data []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	d.byID = make(map[string]Account, len(d.Accounts))
	for _, a := range d.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("parse accounts file: entry %q has no id", a.Name)
		}
		if _, dup := d.byID[a.ID]; dup {
			return nil, fmt.Errorf("parse accounts file: duplicate id %s", a.ID)
		}
		d.byID[a.ID] = a
	}
	return &d, nil
}

// Lookup is nil-safe.
func (d *Directory) Lookup(id string) (Account, bool) {
	if d == nil {
		return Account{}, false
	}
	a, ok := d.byID[id]
	return a, ok
}

// Project returns the project of an account, or "" when unknown.
func (d *Directory) Project(id string) string {
	a, _ := d.Lookup(id)
	return a.Project
}

// Enrich returns a copy of findings with empty account names filled from the directory.
func (d *Directory) Enrich(findings []finding.Finding) []finding.Finding {
	if d == nil || len(d.byID) == 0 {
		return findings
	}
	out := make([]finding.Finding, len(findings))
	for i, f := range findings {
		if a, ok := d.byID[f.AccountID]; ok && f.AccountName == "" {
			f.AccountName = a.Name
		}
		out[i] = f
	}
	return out
}

// Projects lists distinct project names, sorted.
func (d *Directory) Projects() []string {
	if d == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, a := range d.Accounts {
		if a.Project != "" && !seen[a.Project] {
			seen[a.Project] = true
			out = append(out, a.Project)
		}
	}
	sort.Strings(out)
	return out
}

// UnassignedProject groups accounts missing from the directory.
const UnassignedProject = "unassigned"

// FailingByProject counts failing findings per project. A nil directory yields nil.
func (d *Directory) FailingByProject(findings []finding.Finding) map[string]int {
	if d == nil {
		return nil
	}
	out := map[string]int{}
	for _, f := range findings {
		if !f.Failing() {
			continue
		}
		p := d.Project(f.AccountID)
		if p == "" {
			p = UnassignedProject
		}
		out[p]++
	}
	return out
}
