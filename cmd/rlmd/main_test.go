package main

import (
	"os"
	"strings"
	"testing"
)

func TestEnvFilePathJoinsWorkspaceAndDotEnv(t *testing.T) {
	old := workspace
	defer func() { workspace = old }()

	workspace = "/tmp/somewhere"
	got := envFilePath()
	if !strings.HasSuffix(got, string(os.PathSeparator)+".env") {
		t.Fatalf("expected path to end in .env, got %s", got)
	}
	if !strings.HasPrefix(got, "/tmp/somewhere") {
		t.Fatalf("expected path to start with workspace, got %s", got)
	}
}

func TestResolveAPIKeyPrefersFlagOverEnv(t *testing.T) {
	old := apiKey
	defer func() { apiKey = old }()

	t.Setenv("RLM_API_KEY", "from-env")
	apiKey = "from-flag"
	if got := resolveAPIKey(); got != "from-flag" {
		t.Fatalf("expected flag value to win, got %s", got)
	}

	apiKey = ""
	if got := resolveAPIKey(); got != "from-env" {
		t.Fatalf("expected env fallback, got %s", got)
	}
}

func TestQuerySignatureDeclaresResponseAndOptionalCode(t *testing.T) {
	sig := querySignature()
	if len(sig.Inputs) != 1 || sig.Inputs[0].Name != "query" {
		t.Fatalf("expected a single query input, got %+v", sig.Inputs)
	}
	var sawResponse, sawCode bool
	for _, f := range sig.Outputs {
		switch f.Name {
		case "response":
			sawResponse = f.Required
		case "code":
			sawCode = !f.Required
		}
	}
	if !sawResponse {
		t.Fatalf("expected a required response output field")
	}
	if !sawCode {
		t.Fatalf("expected an optional code output field")
	}
}
