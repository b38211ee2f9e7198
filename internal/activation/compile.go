package activation

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/profile"
)

const (
	earlyScriptDir = "etc/early.d"
	initScriptDir  = "etc/init.d"
	defaultShell   = "/bin/ion"
)

// Package is one resolved package contributing executables to the image.
// Binaries maps executable name to the source path on the build host.
type Package struct {
	Name     string
	Binaries map[string]string
}

// Input carries everything Compile needs. Timestamp is the fixed build
// timestamp; generated content embeds it instead of the wall clock so
// identical inputs produce identical trees.
type Input struct {
	Realized  *profile.Realized
	Packages  []Package
	Timestamp time.Time
	Shell     string
}

// script is one boot script staged into the tree.
type script struct {
	name    string
	stage   string
	content string
}

// Compile builds the filesystem tree from a realized configuration. Steps run
// in a fixed order: directories, symlinks, package binaries, generated files
// and boot scripts, then sanity checks. Within the generated-file step,
// module contributions apply in sorted module-path order and a later
// contribution at the same path overwrites the earlier one.
func Compile(ctx context.Context, in Input) (*FilesystemTree, error) {
	log := ctxlog.FromContext(ctx)
	if in.Shell == "" {
		in.Shell = defaultShell
	}

	contrib, err := collect(ctx, in.Realized)
	if err != nil {
		return nil, err
	}

	tree := NewTree()

	// Step 1: directory skeleton plus contributed directories (home dirs
	// among them).
	for _, dir := range []string{
		"bin", "dev", "etc", earlyScriptDir, initScriptDir,
		"home", "root", "tmp", "usr/bin", "var",
	} {
		tree.AddDir(dir)
	}
	for _, dir := range contrib.dirs {
		tree.AddDir(dir)
	}

	// Step 2: fixed device symlinks, the shell alias, and contributed links.
	tree.Symlinks["dev/null"] = "null:"
	tree.Symlinks["dev/zero"] = "zero:"
	tree.Symlinks["dev/random"] = "rand:"
	tree.Symlinks["bin/sh"] = in.Shell
	for path, target := range contrib.symlinks {
		tree.Symlinks[cleanPath(path)] = target
	}

	// Step 3: package binaries. Declared package order; the last package
	// providing an executable name wins.
	for _, pkg := range in.Packages {
		for _, name := range sortedKeys(pkg.Binaries) {
			for _, target := range []string{"bin/" + name, "usr/bin/" + name} {
				if prev, ok := tree.Binaries[target]; ok {
					log.Debug("package binary collision", "path", target, "replaced", prev, "winner", pkg.Name)
				}
				tree.Binaries[target] = pkg.Binaries[name]
			}
		}
	}

	// Step 4: generated files, the user database, and boot scripts.
	for _, path := range sortedKeys(contrib.files) {
		f := contrib.files[path]
		tree.AddFile(path, []byte(f.content), f.mode)
	}
	if err := writeUserDB(tree, contrib); err != nil {
		return nil, err
	}
	for _, s := range contrib.scripts {
		dir := initScriptDir
		if s.stage == "early" {
			dir = earlyScriptDir
		}
		tree.AddFile(dir+"/"+s.name, []byte(s.content), 0o755)
	}
	tree.AddFile("etc/imageforge/build-info",
		[]byte(fmt.Sprintf("timestamp=%s\nprofiles=%s\nhash=%s\n",
			in.Timestamp.UTC().Format(time.RFC3339),
			strings.Join(in.Realized.Profiles, ","),
			in.Realized.InputHash())),
		0o644)

	// Step 5: sanity checks. Diagnostics only, never a build failure.
	shellPath := strings.TrimPrefix(in.Shell, "/")
	if !tree.Has(shellPath) {
		log.Warn("default shell not present in image", "shell", in.Shell)
	}
	if _, ok := tree.Files["etc/passwd"]; !ok {
		log.Warn("no user database generated")
	}

	return tree, nil
}

type fileContrib struct {
	content string
	mode    fs.FileMode
	source  string
}

type contributions struct {
	dirs     []string
	symlinks map[string]string
	files    map[string]fileContrib
	scripts  []script
	users    cty.Value
	groups   cty.Value
}

// collect walks module outputs in sorted path order and merges their
// contribution attributes. Later module paths overwrite earlier files at the
// same target path.
func collect(ctx context.Context, r *profile.Realized) (*contributions, error) {
	log := ctxlog.FromContext(ctx)
	c := &contributions{
		symlinks: make(map[string]string),
		files:    make(map[string]fileContrib),
		users:    cty.NilVal,
		groups:   cty.NilVal,
	}

	scriptIdx := make(map[string]int)

	for _, path := range r.Tree.ImplPaths() {
		out, err := r.Output(path)
		if err != nil {
			return nil, fmt.Errorf("resolving module %q: %w", path, err)
		}
		if out.IsNull() || !out.Type().IsObjectType() {
			continue
		}

		if out.Type().HasAttribute("dirs") {
			for it := out.GetAttr("dirs").ElementIterator(); it.Next(); {
				_, el := it.Element()
				c.dirs = append(c.dirs, el.AsString())
			}
		}

		if out.Type().HasAttribute("symlinks") {
			links := out.GetAttr("symlinks")
			if links.Type().IsObjectType() || links.Type().IsMapType() {
				for name, target := range links.AsValueMap() {
					c.symlinks[name] = target.AsString()
				}
			}
		}

		if out.Type().HasAttribute("files") {
			files := out.GetAttr("files")
			if files.Type().IsObjectType() {
				byPath := files.AsValueMap()
				for _, target := range sortedKeys(byPath) {
					entry := byPath[target].AsValueMap()
					if prev, ok := c.files[target]; ok {
						log.Debug("generated file collision", "path", target, "replaced", prev.source, "winner", path)
					}
					mode := fs.FileMode(0o644)
					if m, ok := entry["mode"]; ok && !m.IsNull() {
						if parsed, err := strconv.ParseUint(m.AsString(), 8, 32); err == nil {
							mode = fs.FileMode(parsed)
						}
					}
					c.files[target] = fileContrib{
						content: entry["content"].AsString(),
						mode:    mode,
						source:  path,
					}
				}
			}
		}

		if out.Type().HasAttribute("scripts") {
			for it := out.GetAttr("scripts").ElementIterator(); it.Next(); {
				_, el := it.Element()
				s := script{
					name:    el.GetAttr("name").AsString(),
					stage:   el.GetAttr("stage").AsString(),
					content: el.GetAttr("content").AsString(),
				}
				key := s.stage + "/" + s.name
				if i, ok := scriptIdx[key]; ok {
					c.scripts[i] = s
					continue
				}
				scriptIdx[key] = len(c.scripts)
				c.scripts = append(c.scripts, s)
			}
		}

		if out.Type().HasAttribute("users") {
			c.users = out.GetAttr("users")
		}
		if out.Type().HasAttribute("groups") {
			c.groups = out.GetAttr("groups")
		}
	}
	return c, nil
}

// writeUserDB encodes the collected account objects into etc/passwd and
// etc/group. Records are ordered by uid (gid for groups), name as tiebreak.
func writeUserDB(tree *FilesystemTree, c *contributions) error {
	if c.users == cty.NilVal {
		return nil
	}

	var users []User
	byName := c.users.AsValueMap()
	for name, val := range byName {
		attrs := val.AsValueMap()
		uid, err := ctyInt(attrs["uid"])
		if err != nil {
			return fmt.Errorf("user %q: %w", name, err)
		}
		gid, err := ctyInt(attrs["gid"])
		if err != nil {
			return fmt.Errorf("user %q: %w", name, err)
		}
		users = append(users, User{
			Name:     name,
			Password: attrs["password"].AsString(),
			UID:      uid,
			GID:      gid,
			Realname: attrs["realname"].AsString(),
			Home:     attrs["home"].AsString(),
			Shell:    attrs["shell"].AsString(),
		})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].UID != users[j].UID {
			return users[i].UID < users[j].UID
		}
		return users[i].Name < users[j].Name
	})
	tree.AddFile("etc/passwd", []byte(FormatPasswd(users)), 0o644)

	if c.groups == cty.NilVal {
		return nil
	}
	var groups []Group
	for name, val := range c.groups.AsValueMap() {
		attrs := val.AsValueMap()
		gid, err := ctyInt(attrs["gid"])
		if err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
		var members []string
		if m, ok := attrs["members"]; ok && !m.IsNull() {
			for it := m.ElementIterator(); it.Next(); {
				_, el := it.Element()
				members = append(members, el.AsString())
			}
		}
		groups = append(groups, Group{Name: name, GID: gid, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].GID != groups[j].GID {
			return groups[i].GID < groups[j].GID
		}
		return groups[i].Name < groups[j].Name
	})
	tree.AddFile("etc/group", []byte(FormatGroup(groups)), 0o644)
	return nil
}

func ctyInt(v cty.Value) (int, error) {
	if v == cty.NilVal || v.IsNull() {
		return 0, fmt.Errorf("missing numeric value")
	}
	i, _ := v.AsBigFloat().Int64()
	return int(i), nil
}

