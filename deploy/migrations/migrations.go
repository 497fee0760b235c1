// Package migrations embeds the Agentica MySQL schema scripts.
//
// Scripts are named NNNN_description.sql and are applied in ascending
// version order. Lines starting with "--" are comments and statements are
// separated by semicolons.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Script 是一个已拆分为语句的迁移文件。
type Script struct {
	Version    string
	Name       string
	Statements []string
}

// Embedded 返回随二进制发布的全部迁移脚本。
func Embedded() ([]Script, error) {
	return Load(files)
}

// Load 读取 fsys 根目录下的 .sql 文件，按版本排序返回，空脚本会被跳过。
func Load(fsys fs.FS) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	var scripts []Script
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := versionOf(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移版本 %s 重复: %s 与 %s", version, prev, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		stmts := Split(string(content))
		if len(stmts) == 0 {
			continue
		}
		scripts = append(scripts, Script{Version: version, Name: name, Statements: stmts})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// Split 去掉注释行后按分号切分语句。
func Split(content string) []string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func versionOf(name string) (string, error) {
	prefix, _, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
	if !ok || prefix == "" || strings.Trim(prefix, "0123456789") != "" {
		return "", fmt.Errorf("迁移文件名 %s 不符合 NNNN_description.sql", name)
	}
	return prefix, nil
}
