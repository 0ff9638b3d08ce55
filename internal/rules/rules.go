// Package rules decides whether a single unlabelled amount is money in or
// money out, from keywords in the transaction type and description.
//
// The keyword table is data, not code: callers inject their own rule set
// (usually loaded from YAML) so the engine carries no institution-specific
// knowledge beyond a small default vocabulary.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

// Signal is the direction a keyword points to.
type Signal int

const (
	Unknown Signal = iota
	Income
	Expense
)

func (s Signal) String() string {
	switch s {
	case Income:
		return "income"
	case Expense:
		return "expense"
	default:
		return "unknown"
	}
}

// Rule maps one case-insensitive keyword to a signal.
type Rule struct {
	Keyword string
	Signal  Signal
}

// File is the on-disk shape, in YAML:
//
//	income:
//	  - salary
//	  - stripe payout
//	expense:
//	  - card payment
type File struct {
	Income  []string `yaml:"income" toml:"income"`
	Expense []string `yaml:"expense" toml:"expense"`
}

// Rules flattens the file into a rule list.
func (f File) Rules() []Rule {
	out := make([]Rule, 0, len(f.Income)+len(f.Expense))
	for _, kw := range f.Income {
		out = append(out, Rule{Keyword: kw, Signal: Income})
	}
	for _, kw := range f.Expense {
		out = append(out, Rule{Keyword: kw, Signal: Expense})
	}
	return out
}

// DefaultRules is the vocabulary common to UK current account statements.
var DefaultRules = File{
	Income: []string{
		"bgc", "bank giro credit", "salary", "wages", "refund", "interest paid",
		"interest earned", "transfer from", "credit from", "direct credit",
		"faster payment received", "fpi", "deposit", "cash in", "paid in",
		"stripe payout", "paypal transfer", "dividend", "cashback", "reversal",
	},
	Expense: []string{
		"card payment", "direct debit", "dd", "standing order", "so", "atm",
		"cash withdrawal", "withdrawal", "transfer to", "fpo", "bill payment",
		"payment to", "pos", "purchase", "fee", "charge", "interest charged",
		"debit card", "chq", "cheque paid",
	},
}.Rules()

// RuleSet matches many keywords in one pass using an Aho-Corasick automaton.
// It is immutable after construction and safe for concurrent use.
type RuleSet struct {
	matcher *ahocorasick.Matcher
	rules   []Rule
}

// New builds a rule set. Keywords are normalized like the matched text and
// padded with spaces so that short tokens such as "dd" only match whole words.
func New(rules []Rule) *RuleSet {
	rs := &RuleSet{}
	seen := make(map[string]int, len(rules))
	patterns := make([]string, 0, len(rules))
	for _, r := range rules {
		kw := strings.TrimSpace(normalize(r.Keyword))
		if kw == "" || r.Signal == Unknown {
			continue
		}
		if idx, ok := seen[kw]; ok {
			// same keyword listed under both signals is ambiguous
			if rs.rules[idx].Signal != r.Signal {
				rs.rules[idx].Signal = Expense
			}
			continue
		}
		seen[kw] = len(rs.rules)
		rs.rules = append(rs.rules, Rule{Keyword: kw, Signal: r.Signal})
		patterns = append(patterns, " "+kw+" ")
	}
	if len(patterns) > 0 {
		rs.matcher = ahocorasick.NewStringMatcher(patterns)
	}
	return rs
}

// Default returns a rule set built from DefaultRules.
func Default() *RuleSet {
	return New(DefaultRules)
}

// Load reads a rules file, TOML when the name ends in .toml and YAML
// otherwise. When extend is true the file's keywords are added to
// DefaultRules instead of replacing them.
func Load(path string, extend bool) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}
	var f File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	rules := f.Rules()
	if extend {
		rules = append(append([]Rule{}, DefaultRules...), rules...)
	}
	return New(rules), nil
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Classify returns the signal of the first text that matches any keyword.
// Within one text the longest matching keyword wins; equal-length matches
// with conflicting signals resolve to Expense.
func (rs *RuleSet) Classify(texts ...string) Signal {
	if rs == nil || rs.matcher == nil {
		return Unknown
	}
	for _, text := range texts {
		if s := rs.match(text); s != Unknown {
			return s
		}
	}
	return Unknown
}

func (rs *RuleSet) match(text string) Signal {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown
	}
	hits := rs.matcher.Match([]byte(" " + normalize(text) + " "))
	best := Unknown
	bestLen := 0
	for _, idx := range hits {
		r := rs.rules[idx]
		switch {
		case len(r.Keyword) > bestLen:
			best, bestLen = r.Signal, len(r.Keyword)
		case len(r.Keyword) == bestLen && r.Signal != best:
			best = Expense
		}
	}
	return best
}

// normalize lowercases and turns punctuation into spaces so keywords match
// across "DIRECT-DEBIT", "Direct Debit" and "direct debit/".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return b.String()
}
