// Package template expands {name} placeholders in updater arguments.
package template

import (
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Builtins returns the host placeholders:
//
//	{hostname}  short host name
//	{user}      current username
//	{os}        runtime.GOOS
//	{arch}      runtime.GOARCH
func Builtins() map[string]string {
	vars := map[string]string{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if u, err := user.Current(); err == nil {
		vars["user"] = u.Username
	} else {
		vars["user"] = "unknown"
	}
	if h, err := os.Hostname(); err == nil {
		vars["hostname"] = strings.Split(h, ".")[0]
	} else {
		vars["hostname"] = "unknown"
	}
	return vars
}

// Expand replaces {name} placeholders in text. vars override the builtins.
// Unknown placeholders are left as written.
func Expand(text string, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	all := Builtins()
	for k, v := range vars {
		all[k] = v
	}
	pairs := make([]string, 0, 2*len(all))
	for k, v := range all {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// ExpandAll expands every element of args into a new slice.
func ExpandAll(args []string, vars map[string]string) []string {
	if args == nil {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Expand(a, vars)
	}
	return out
}
