package status

// Built-in classification rule categories. Each category is a versioned,
// static list merged into one registry at startup via LoadCategory. Rule ids
// are namespaced "category/name" so hot reload can swap a category without
// touching the others.

// Category is a named, versioned rule set.
type Category struct {
	Name    string
	Version int
	Rules   []StatusPattern
}

// DefaultCategories returns every built-in category in load order.
func DefaultCategories() []Category {
	return []Category{
		VersionControlCategory(),
		PackageManagerCategory(),
		ContainerRuntimeCategory(),
		BuildToolCategory(),
		InteractivePromptCategory(),
	}
}

// VersionControlCategory covers git states: merge conflicts, the commit
// message editor, rebase stops, and long-running remote operations.
func VersionControlCategory() Category {
	return Category{
		Name:    "version-control",
		Version: 1,
		Rules: []StatusPattern{
			{
				ID:       "version-control/merge-conflict",
				Name:     "git merge conflict",
				Shell:    ScopeAll,
				Pattern:  `CONFLICT \((content|modify/delete|rename/rename)\): `,
				Status:   StatusError,
				Priority: 70,
				Enabled:  true,
			},
			{
				ID:       "version-control/merge-failed",
				Name:     "git automatic merge failed",
				Shell:    ScopeAll,
				Pattern:  `Automatic merge failed; fix conflicts`,
				Status:   StatusError,
				Priority: 70,
				Enabled:  true,
			},
			{
				ID:       "version-control/commit-editor",
				Name:     "git commit message editor",
				Shell:    ScopeAll,
				Pattern:  `# Please enter the commit message`,
				Status:   StatusWaiting,
				Priority: 60,
				Enabled:  true,
			},
			{
				ID:       "version-control/rebase-stopped",
				Name:     "git rebase stopped",
				Shell:    ScopeAll,
				Pattern:  `(?m)^interactive rebase in progress|You are currently rebasing`,
				Status:   StatusWaiting,
				Priority: 60,
				Enabled:  true,
			},
			{
				ID:       "version-control/remote-operation",
				Name:     "git remote operation",
				Shell:    ScopeAll,
				Pattern:  `(Receiving|Resolving|Compressing|Counting|Enumerating) (objects|deltas):\s+\d+%`,
				Status:   StatusWorking,
				Priority: 30,
				Enabled:  true,
			},
		},
	}
}

// PackageManagerCategory covers npm/yarn/pnpm/pip install chatter and errors.
func PackageManagerCategory() Category {
	return Category{
		Name:    "package-manager",
		Version: 1,
		Rules: []StatusPattern{
			{
				ID:       "package-manager/npm-error",
				Name:     "npm error output",
				Shell:    ScopeAll,
				Pattern:  `(?m)^npm (ERR!|error)`,
				Status:   StatusError,
				Priority: 65,
				Enabled:  true,
			},
			{
				ID:       "package-manager/yarn-error",
				Name:     "yarn error output",
				Shell:    ScopeAll,
				Pattern:  `(?m)^error An unexpected error occurred|^error Command failed`,
				Status:   StatusError,
				Priority: 65,
				Enabled:  true,
			},
			{
				ID:       "package-manager/pip-error",
				Name:     "pip install failure",
				Shell:    ScopeAll,
				Pattern:  `ERROR: (Could not|No matching distribution|pip's dependency resolver)`,
				Status:   StatusError,
				Priority: 65,
				Enabled:  true,
			},
			{
				ID:       "package-manager/install-progress",
				Name:     "package install in progress",
				Shell:    ScopeAll,
				Pattern:  `(?i)(resolving packages|fetching packages|linking dependencies|added \d+ packages|collecting [\w.-]+)`,
				Status:   StatusWorking,
				Priority: 25,
				Enabled:  true,
			},
		},
	}
}

// ContainerRuntimeCategory covers docker/compose pulls, builds, and errors.
func ContainerRuntimeCategory() Category {
	return Category{
		Name:    "container-runtime",
		Version: 1,
		Rules: []StatusPattern{
			{
				ID:       "container-runtime/daemon-error",
				Name:     "docker daemon error",
				Shell:    ScopeAll,
				Pattern:  `Cannot connect to the Docker daemon|Error response from daemon`,
				Status:   StatusError,
				Priority: 65,
				Enabled:  true,
			},
			{
				ID:       "container-runtime/pull-progress",
				Name:     "image pull in progress",
				Shell:    ScopeAll,
				Pattern:  `(Pulling from|Downloading|Extracting)\s+\S+|\d+(\.\d+)?[kMG]B/\d+(\.\d+)?[kMG]B`,
				Status:   StatusWorking,
				Priority: 25,
				Enabled:  true,
			},
			{
				ID:       "container-runtime/build-step",
				Name:     "image build step",
				Shell:    ScopeAll,
				Pattern:  `(?m)^(Step \d+/\d+|#\d+ \[[ \d/]+\])`,
				Status:   StatusWorking,
				Priority: 25,
				Enabled:  true,
			},
		},
	}
}

// BuildToolCategory covers compiler errors, runtime panics, and test chatter.
func BuildToolCategory() Category {
	return Category{
		Name:    "build-tool",
		Version: 1,
		Rules: []StatusPattern{
			{
				ID:       "build-tool/compiler-error",
				Name:     "compiler error",
				Shell:    ScopeAll,
				Pattern:  `(?m)^[\w./\\-]+:\d+(:\d+)?: (fatal )?error[: ]`,
				Status:   StatusError,
				Priority: 55,
				Enabled:  true,
			},
			{
				ID:       "build-tool/panic",
				Name:     "runtime panic",
				Shell:    ScopeAll,
				Pattern:  `(?m)^panic: |Unhandled exception|Traceback \(most recent call last\)`,
				Status:   StatusError,
				Priority: 55,
				Enabled:  true,
			},
			{
				ID:       "build-tool/test-failure",
				Name:     "test failure",
				Shell:    ScopeAll,
				Pattern:  `(?m)^(--- FAIL:|FAILED \(|\d+ (test[s]? )?failed)`,
				Status:   StatusError,
				Priority: 50,
				Enabled:  true,
			},
			{
				ID:       "build-tool/build-progress",
				Name:     "build in progress",
				Shell:    ScopeAll,
				Pattern:  `(?i)(compiling|building|bundling|transpiling|linking)\s+[\w@./-]+`,
				Status:   StatusWorking,
				Priority: 20,
				Enabled:  true,
			},
		},
	}
}

// InteractivePromptCategory covers generic input prompts that apply to all
// shells: confirmations, password prompts, and pagers.
func InteractivePromptCategory() Category {
	return Category{
		Name:    "interactive-prompt",
		Version: 1,
		Rules: []StatusPattern{
			{
				ID:       "interactive-prompt/confirm",
				Name:     "yes/no confirmation",
				Shell:    ScopeAll,
				Pattern:  `\((y/N|Y/n|yes/no)\)|\[(y/N|Y/n|yes/no)\]\s*$`,
				Status:   StatusWaiting,
				Priority: 45,
				Enabled:  true,
			},
			{
				ID:       "interactive-prompt/password",
				Name:     "password prompt",
				Shell:    ScopeAll,
				Pattern:  `(?i)(password|passphrase)( for [^:]+)?:\s*$`,
				Status:   StatusWaiting,
				Priority: 45,
				Enabled:  true,
			},
			{
				ID:       "interactive-prompt/pager",
				Name:     "pager waiting",
				Shell:    ScopeAll,
				Pattern:  `(?m)^(--More--|\(END\))\s*$`,
				Status:   StatusWaiting,
				Priority: 40,
				Enabled:  true,
			},
		},
	}
}
