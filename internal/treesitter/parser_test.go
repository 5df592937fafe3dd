package treesitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/models"
)

const javaSource = `package org.example;

import java.util.List;

public class Account {
    private int balance;

    public Account(int balance) {
        this.balance = balance;
    }

    public void deposit(int amount) {
        balance += amount;
    }

    public void deposit(long amount) {
        balance += (int) amount;
    }

    private static class Audit {
        void record() {
        }
    }
}

class Helper {
    int help() { return 1; }
}
`

func TestSourceParserJava(t *testing.T) {
	res, err := NewSourceParser().Parse("src/org/example/Account.java", []byte(javaSource))
	require.NoError(t, err)

	assert.Equal(t, "java", res.Language)
	assert.Equal(t, models.Span{Name: "Account", StartLine: 5, EndLine: 24}, res.Class)

	assert.Equal(t, []models.Span{
		{Name: "Account", StartLine: 8, EndLine: 10},
		{Name: "deposit", StartLine: 12, EndLine: 14},
		{Name: "deposit", StartLine: 16, EndLine: 18},
		{Name: "record", StartLine: 21, EndLine: 22},
		{Name: "help", StartLine: 27, EndLine: 27},
	}, res.Methods)
}

func TestSourceParserJavaPrimaryTypeFallback(t *testing.T) {
	res, err := NewSourceParser().Parse("Other.java", []byte("class A {}\nclass B {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "A", res.Class.Name)
	assert.Empty(t, res.Methods)
}

func TestSourceParserRejectsSyntaxErrors(t *testing.T) {
	_, err := NewSourceParser().Methods("Broken.java", []byte("public class Broken { void f( { }"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeParse, errors.GetType(err))
}

func TestSourceParserUnsupported(t *testing.T) {
	_, err := NewSourceParser().Methods("main.rs", []byte("fn main() {}"))
	assert.Error(t, err)
}

func TestSourceParserPython(t *testing.T) {
	src := "import os\n\nclass widget:\n    def draw(self):\n        pass\n\ndef helper():\n    return 1\n"

	res, err := NewSourceParser().Parse("pkg/widget.py", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "widget", res.Class.Name)
	assert.Equal(t, 3, res.Class.StartLine)

	names := make([]string, 0, len(res.Methods))
	for _, m := range res.Methods {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"draw", "helper"}, names)

	res, err = NewSourceParser().Parse("pkg/util.py", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, models.Span{Name: "util", StartLine: 1, EndLine: 8}, res.Class)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "java", DetectLanguage("A.java"))
	assert.Equal(t, "python", DetectLanguage("a.py"))
	assert.Empty(t, DetectLanguage("a.js"))
}
