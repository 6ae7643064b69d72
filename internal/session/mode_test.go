package session

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func yamlUnmarshalForTest(src string, out *CommandScope) error {
	return yaml.Unmarshal([]byte(src), out)
}

func TestModePolicyCheckCommand(t *testing.T) {
	cases := []struct {
		name    string
		mode    ModePolicy
		cmd     string
		wantErr bool
	}{
		{"wcgw allows anything", Wcgw(), "rm -rf /", false},
		{"architect denies everything", Architect(), "ls", true},
		{"code-writer all allows anything", CodeWriter(nil, CommandScope{All: true}), "rm -rf /", false},
		{"code-writer prefix allows exact token", CodeWriter(nil, CommandScope{Prefixes: []string{"git", "ls"}}), "git status", false},
		{"code-writer prefix denies partial token match", CodeWriter(nil, CommandScope{Prefixes: []string{"git"}}), "github-cli status", true},
		{"code-writer prefix denies unlisted", CodeWriter(nil, CommandScope{Prefixes: []string{"git"}}), "rm -rf /", true},
		{"code-writer checks every chained segment", CodeWriter(nil, CommandScope{Prefixes: []string{"git", "ls"}}), "git status && ls -la", false},
		{"code-writer chained segment fails if one unlisted", CodeWriter(nil, CommandScope{Prefixes: []string{"git"}}), "git status && rm -rf /", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mode.CheckCommand(tc.cmd)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckCommand(%q) error = %v, wantErr %v", tc.cmd, err, tc.wantErr)
			}
		})
	}
}

func TestModePolicyCheckWrite(t *testing.T) {
	cases := []struct {
		name    string
		mode    ModePolicy
		path    string
		wantErr bool
	}{
		{"wcgw allows anything", Wcgw(), "/etc/passwd", false},
		{"architect denies everything", Architect(), "a.go", true},
		{"code-writer allows matching glob", CodeWriter([]string{"*.go"}, CommandScope{All: true}), "main.go", false},
		{"code-writer denies non-matching glob", CodeWriter([]string{"*.go"}, CommandScope{All: true}), "main.py", true},
		{"code-writer allows directory-anchored glob", CodeWriter([]string{"src/**"}, CommandScope{All: true}), "src/pkg/file.go", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mode.CheckWrite(tc.path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckWrite(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
		})
	}
}

func TestCommandScopeUnmarshalYAML(t *testing.T) {
	var scope CommandScope
	if err := yamlUnmarshalForTest("all", &scope); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if !scope.All {
		t.Fatalf("expected All=true for scalar \"all\"")
	}

	var listScope CommandScope
	if err := yamlUnmarshalForTest("[git, ls]", &listScope); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listScope.Prefixes) != 2 || listScope.Prefixes[0] != "git" {
		t.Fatalf("unexpected prefixes: %#v", listScope.Prefixes)
	}
}
