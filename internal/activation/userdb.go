package activation

import (
	"fmt"
	"strconv"
	"strings"
)

// User is one record of the semicolon-delimited user database.
type User struct {
	Name     string
	Password string
	UID      int
	GID      int
	Realname string
	Home     string
	Shell    string
}

// Group is one record of the group database. The second field is the literal
// placeholder "x".
type Group struct {
	Name    string
	GID     int
	Members []string
}

// FormatPasswd serializes users as name;password;uid;gid;realname;home;shell,
// one record per line. ParsePasswd(FormatPasswd(u)) reproduces u exactly.
func FormatPasswd(users []User) string {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "%s;%s;%d;%d;%s;%s;%s\n",
			u.Name, u.Password, u.UID, u.GID, u.Realname, u.Home, u.Shell)
	}
	return b.String()
}

// ParsePasswd parses the user database format produced by FormatPasswd.
func ParsePasswd(s string) ([]User, error) {
	var users []User
	for i, line := range splitLines(s) {
		fields := strings.Split(line, ";")
		if len(fields) != 7 {
			return nil, fmt.Errorf("passwd line %d: want 7 fields, got %d", i+1, len(fields))
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("passwd line %d: uid: %w", i+1, err)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("passwd line %d: gid: %w", i+1, err)
		}
		users = append(users, User{
			Name:     fields[0],
			Password: fields[1],
			UID:      uid,
			GID:      gid,
			Realname: fields[4],
			Home:     fields[5],
			Shell:    fields[6],
		})
	}
	return users, nil
}

// FormatGroup serializes groups as name;x;gid;member1,member2.
func FormatGroup(groups []Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%s;x;%d;%s\n", g.Name, g.GID, strings.Join(g.Members, ","))
	}
	return b.String()
}

// ParseGroup parses the group database format produced by FormatGroup.
func ParseGroup(s string) ([]Group, error) {
	var groups []Group
	for i, line := range splitLines(s) {
		fields := strings.Split(line, ";")
		if len(fields) != 4 {
			return nil, fmt.Errorf("group line %d: want 4 fields, got %d", i+1, len(fields))
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("group line %d: gid: %w", i+1, err)
		}
		var members []string
		if fields[3] != "" {
			members = strings.Split(fields[3], ",")
		}
		groups = append(groups, Group{Name: fields[0], GID: gid, Members: members})
	}
	return groups, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
