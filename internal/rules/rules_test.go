package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassify(t *testing.T) {
	rs := Default()

	tests := []struct {
		name  string
		texts []string
		want  Signal
	}{
		{"salary credit", []string{"", "BGC SALARY EMPLOYER LTD"}, Income},
		{"card payment", []string{"", "CARD PAYMENT TO TESCO STORES"}, Expense},
		{"type wins over description", []string{"DD", "SALARY SACRIFICE"}, Expense},
		{"falls through empty type", []string{"", "Stripe Payout 1234"}, Income},
		{"punctuation tolerated", []string{"DIRECT-DEBIT"}, Expense},
		{"whole words only", []string{"ADDISON LEE"}, Unknown},
		{"no keywords", []string{"Monthly", "Something else"}, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.Classify(tt.texts...))
		})
	}
}

func TestLongestKeywordWins(t *testing.T) {
	rs := New([]Rule{
		{Keyword: "payment", Signal: Expense},
		{Keyword: "payment received", Signal: Income},
	})
	assert.Equal(t, Income, rs.Classify("FASTER PAYMENT RECEIVED FROM J SMITH"))
	assert.Equal(t, Expense, rs.Classify("PAYMENT TO J SMITH"))
}

func TestConflictingKeywordResolvesToExpense(t *testing.T) {
	rs := New([]Rule{
		{Keyword: "transfer", Signal: Income},
		{Keyword: "transfer", Signal: Expense},
	})
	assert.Equal(t, 1, rs.Len())
	assert.Equal(t, Expense, rs.Classify("TRANSFER"))
}

func TestEmptyRuleSet(t *testing.T) {
	assert.Equal(t, Unknown, New(nil).Classify("salary"))

	var rs *RuleSet
	assert.Equal(t, Unknown, rs.Classify("salary"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("income:\n  - acme payroll\nexpense:\n  - gym\n"), 0o644))

	rs, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, Income, rs.Classify("ACME PAYROLL MARCH"))
	assert.Equal(t, Unknown, rs.Classify("CARD PAYMENT"))

	extended, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, Expense, extended.Classify("CARD PAYMENT"))
	assert.Equal(t, Expense, extended.Classify("PURE GYM"))
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte("income = [\"acme payroll\"]\nexpense = [\"gym\", \"netflix\"]\n"), 0o644))

	rs, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Len())
	assert.Equal(t, Income, rs.Classify("ACME PAYROLL MARCH"))
	assert.Equal(t, Expense, rs.Classify("NETFLIX.COM"))
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad.yaml": "income: [unterminated\n",
		"bad.toml": "income = \n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path, false)
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	assert.Error(t, err)
}
