package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"sweep"},
		{"summary"},
		{"user", "create-admin"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("子命令 %v 未注册", path)
		}
	}
}

func TestSummaryCmd_RequiresUser(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"summary"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "user") {
		t.Fatalf("缺少 --user 时期望报错, 实际=%v", err)
	}
}

func TestYesNo(t *testing.T) {
	if yesNo(true) != "是" || yesNo(false) != "否" {
		t.Error("yesNo 输出不符")
	}
}
