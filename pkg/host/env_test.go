package host

import (
	"reflect"
	"testing"
)

func TestEnv_Environ(t *testing.T) {
	env := NewEnv(map[string]string{"PATH": "/nvm/bin:/usr/bin", "NVM_DIR": "/nvm"})
	got := env.Environ([]string{"PATH=/usr/bin", "HOME=/root"})
	want := []string{"HOME=/root", "NVM_DIR=/nvm", "PATH=/nvm/bin:/usr/bin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Environ() = %v, want %v", got, want)
	}

	var nilEnv *Env
	if nilEnv.Path() != "" || nilEnv.PathDirs() != nil || nilEnv.Assignments() != nil {
		t.Error("nil env should behave as empty")
	}
}

func TestEnv_With(t *testing.T) {
	base := NewEnv(map[string]string{"A": "1"})
	base.Source = "/nvm/nvm.sh"
	next := base.With("B", "2")

	if base.Get("B") != "" {
		t.Error("With must not mutate the receiver")
	}
	if next.Get("A") != "1" || next.Get("B") != "2" || next.Source != "/nvm/nvm.sh" {
		t.Errorf("With() = %+v", next)
	}
	if !DegradedEnv().Degraded {
		t.Error("DegradedEnv should be flagged")
	}
}

func TestParseEnviron(t *testing.T) {
	out := "PATH=/a:/b\x00NVM_DIR=/root/.nvm\x00MULTI=x\ny\x00\x00"
	got := ParseEnviron(out)
	want := map[string]string{"PATH": "/a:/b", "NVM_DIR": "/root/.nvm", "MULTI": "x\ny"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseEnviron() = %v, want %v", got, want)
	}
}
