package status

import "testing"

func TestDefaultCategoriesLoadCleanly(t *testing.T) {
	r := NewRegistry()
	total := 0
	for _, cat := range DefaultCategories() {
		if err := r.LoadCategory(cat.Name, cat.Rules); err != nil {
			t.Fatalf("category %s: %v", cat.Name, err)
		}
		total += len(cat.Rules)
	}
	if r.Len() != total {
		t.Errorf("expected %d rules registered, got %d", total, r.Len())
	}
}

func TestBuiltinRuleSamples(t *testing.T) {
	r := NewRegistry()
	for _, cat := range DefaultCategories() {
		if err := r.LoadCategory(cat.Name, cat.Rules); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	m := NewMatcher(r, fastMatcherConfig())

	tests := []struct {
		name    string
		output  string
		ruleID  string
		status  Status
	}{
		{
			name:   "git merge conflict",
			output: "CONFLICT (content): Merge conflict in app.ts\nAutomatic merge failed; fix conflicts and then commit the result.\n",
			ruleID: "version-control/merge-conflict",
			status: StatusError,
		},
		{
			name:   "commit editor",
			output: "# Please enter the commit message for your changes. Lines starting\n",
			ruleID: "version-control/commit-editor",
			status: StatusWaiting,
		},
		{
			name:   "git clone progress",
			output: "Receiving objects:  42% (1234/2938), 5.3 MiB | 2.1 MiB/s\n",
			ruleID: "version-control/remote-operation",
			status: StatusWorking,
		},
		{
			name:   "npm failure",
			output: "npm ERR! code ERESOLVE\nnpm ERR! ERESOLVE unable to resolve dependency tree\n",
			ruleID: "package-manager/npm-error",
			status: StatusError,
		},
		{
			name:   "docker daemon down",
			output: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock.\n",
			ruleID: "container-runtime/daemon-error",
			status: StatusError,
		},
		{
			name:   "docker build step",
			output: "Step 3/12 : RUN apt-get update\n",
			ruleID: "container-runtime/build-step",
			status: StatusWorking,
		},
		{
			name:   "compiler error",
			output: "main.go:42:7: error: undefined: frobnicate\n",
			ruleID: "build-tool/compiler-error",
			status: StatusError,
		},
		{
			name:   "go panic",
			output: "panic: runtime error: index out of range [3] with length 2\n",
			ruleID: "build-tool/panic",
			status: StatusError,
		},
		{
			name:   "go test failure",
			output: "--- FAIL: TestThing (0.01s)\n",
			ruleID: "build-tool/test-failure",
			status: StatusError,
		},
		{
			name:   "confirmation prompt",
			output: "Do you want to continue? [Y/n] ",
			ruleID: "interactive-prompt/confirm",
			status: StatusWaiting,
		},
		{
			name:   "ssh passphrase",
			output: "Enter passphrase for key '/home/u/.ssh/id_ed25519':",
			ruleID: "interactive-prompt/password",
			status: StatusWaiting,
		},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sessionID := string(rune('a' + i))
			match := m.OnOutput(sessionID, ScopeBash, []byte(tc.output))
			if match == nil {
				t.Fatalf("expected a match for %q", tc.output)
			}
			if match.PatternID != tc.ruleID {
				t.Errorf("expected rule %s, got %s", tc.ruleID, match.PatternID)
			}
			if match.Status != tc.status {
				t.Errorf("expected status %s, got %s", tc.status, match.Status)
			}
		})
	}
}

func TestRuleIDsAreNamespaced(t *testing.T) {
	for _, cat := range DefaultCategories() {
		for _, rule := range cat.Rules {
			if categoryOf(rule.ID) != cat.Name {
				t.Errorf("rule %q is not namespaced under category %q", rule.ID, cat.Name)
			}
		}
	}
}
