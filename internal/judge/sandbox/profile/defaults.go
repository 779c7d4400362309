package profile

import "coderunner/internal/judge/model"

// Defaults returns the built-in language table.
func Defaults() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:             string(model.LanguageCPP),
			Name:           "C++",
			Version:        "GCC 13 (C++17)",
			SourceFile:     "main.cpp",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "g++ -O2 -std=c++17 -pipe -o {bin} {src}",
			RunCmdTpl:      "{bin}",
			Image:          "gcc:13",
			RemoteID:       54,
		},
		{
			ID:             string(model.LanguageC),
			Name:           "C",
			Version:        "GCC 13 (C11)",
			SourceFile:     "main.c",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "gcc -O2 -std=c11 -pipe -o {bin} {src} -lm",
			RunCmdTpl:      "{bin}",
			Image:          "gcc:13",
			RemoteID:       50,
		},
		{
			ID:         string(model.LanguagePython),
			Name:       "Python",
			Version:    "3.12",
			SourceFile: "main.py",
			RunCmdTpl:  "python3 {src}",
			Env:        []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},
			Image:      "python:3.12-slim",
			RemoteID:   71,
		},
		{
			ID:             string(model.LanguageJava),
			Name:           "Java",
			Version:        "OpenJDK 21",
			SourceFile:     "Main.java",
			BinaryFile:     "Main.class",
			CompileEnabled: true,
			CompileCmdTpl:  "javac -encoding UTF-8 -d {dir} {src}",
			RunCmdTpl:      "java -Xss64m -cp {dir} Main",
			Image:          "eclipse-temurin:21-jdk",
			RemoteID:       62,
			TimeMultiplier: 2,
		},
		{
			ID:             string(model.LanguageCSharp),
			Name:           "C#",
			Version:        "Mono 6.12",
			SourceFile:     "main.cs",
			BinaryFile:     "main.exe",
			CompileEnabled: true,
			CompileCmdTpl:  "mcs -optimize+ -out:{bin} {src}",
			RunCmdTpl:      "mono {bin}",
			Image:          "mono:6.12",
			RemoteID:       51,
			TimeMultiplier: 1.5,
		},
		{
			ID:         string(model.LanguageJavaScript),
			Name:       "JavaScript",
			Version:    "Node.js 20",
			SourceFile: "main.js",
			RunCmdTpl:  "node {src}",
			Image:      "node:20-slim",
			RemoteID:   63,
		},
		{
			ID:         string(model.LanguageRuby),
			Name:       "Ruby",
			Version:    "3.3",
			SourceFile: "main.rb",
			RunCmdTpl:  "ruby {src}",
			Image:      "ruby:3.3-slim",
			RemoteID:   72,
		},
		{
			ID:             string(model.LanguageGo),
			Name:           "Go",
			Version:        "1.22",
			SourceFile:     "main.go",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "go build -o {bin} {src}",
			RunCmdTpl:      "{bin}",
			Env:            []string{"HOME=/tmp", "GOCACHE=/tmp/gocache", "GOPATH=/tmp/gopath", "CGO_ENABLED=0"},
			Image:          "golang:1.22",
			RemoteID:       60,
		},
		{
			ID:             string(model.LanguageRust),
			Name:           "Rust",
			Version:        "1.77",
			SourceFile:     "main.rs",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "rustc -O -o {bin} {src}",
			RunCmdTpl:      "{bin}",
			Image:          "rust:1.77-slim",
			RemoteID:       73,
		},
	}
}
