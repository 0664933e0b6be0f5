package accounts

import (
	"testing"

	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
accounts:
  - id: "111111111111"
    name: prod
    project: payments
  - id: "222222222222"
    name: sandbox
    project: platform
`

func TestParseAndEnrich(t *testing.T) {
	d, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "payments", d.Project("111111111111"))
	assert.Equal(t, "", d.Project("999"))
	assert.Equal(t, []string{"payments", "platform"}, d.Projects())

	in := []finding.Finding{
		{AccountID: "111111111111"},
		{AccountID: "222222222222", AccountName: "kept"},
		{AccountID: "333"},
	}
	out := d.Enrich(in)
	assert.Equal(t, "prod", out[0].AccountName)
	assert.Equal(t, "kept", out[1].AccountName)
	assert.Equal(t, "", out[2].AccountName)
	assert.Equal(t, "", in[0].AccountName, "input is not mutated")
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("accounts:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("accounts:\n  - name: noid\n"))
	assert.Error(t, err)
}

func TestNilDirectory(t *testing.T) {
	var d *Directory
	_, ok := d.Lookup("x")
	assert.False(t, ok)
	assert.Nil(t, d.Projects())
	in := []finding.Finding{{AccountID: "x"}}
	assert.Equal(t, in, d.Enrich(in))
}

func TestFailingByProject(t *testing.T) {
	d, err := Parse([]byte(sample))
	require.NoError(t, err)

	counts := d.FailingByProject([]finding.Finding{
		{AccountID: "111111111111", Status: finding.StatusFail},
		{AccountID: "111111111111", Status: finding.StatusFail},
		{AccountID: "111111111111", Status: finding.StatusPass},
		{AccountID: "222222222222", Status: finding.StatusPass},
		{AccountID: "999", Status: finding.StatusFail},
	})
	assert.Equal(t, map[string]int{"payments": 2, UnassignedProject: 1}, counts)

	var none *Directory
	assert.Nil(t, none.FailingByProject([]finding.Finding{{Status: finding.StatusFail}}))
}
