package judge

import "strings"

// Language describes how a source language is identified by Judge0 and run in a container.
type Language struct {
	Name     string
	Judge0ID int
	Image    string
	FileName string
	Compile  string
	Run      string
}

var languages = map[string]Language{
	"python": {
		Name:     "python",
		Judge0ID: 71,
		Image:    "python:3.11-alpine",
		FileName: "main.py",
		Run:      "python main.py",
	},
	"javascript": {
		Name:     "javascript",
		Judge0ID: 63,
		Image:    "node:20-alpine",
		FileName: "main.js",
		Run:      "node main.js",
	},
	"go": {
		Name:     "go",
		Judge0ID: 60,
		Image:    "golang:1.22-alpine",
		FileName: "main.go",
		Compile:  "go build -o main main.go",
		Run:      "./main",
	},
	"cpp": {
		Name:     "cpp",
		Judge0ID: 54,
		Image:    "gcc:13",
		FileName: "main.cpp",
		Compile:  "g++ -O2 -std=c++17 -o main main.cpp",
		Run:      "./main",
	},
	"c": {
		Name:     "c",
		Judge0ID: 50,
		Image:    "gcc:13",
		FileName: "main.c",
		Compile:  "gcc -O2 -o main main.c",
		Run:      "./main",
	},
	"java": {
		Name:     "java",
		Judge0ID: 62,
		Image:    "eclipse-temurin:21",
		FileName: "Main.java",
		Compile:  "javac Main.java",
		Run:      "java Main",
	},
}

// LookupLanguage resolves a language by its case-insensitive name.
func LookupLanguage(name string) (Language, bool) {
	language, ok := languages[strings.ToLower(strings.TrimSpace(name))]
	return language, ok
}
