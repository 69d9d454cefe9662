package webhooks

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/coreybb/signet/coverage"
	"github.com/coreybb/signet/githubapp"
)

// coAuthorTrailer matches "Co-authored-by: Name <email>" lines in any case.
var coAuthorTrailer = regexp.MustCompile(`(?im)^[ \t]*co-authored-by:[ \t]*(.*?)[ \t]*<([^<>\s]+)>[ \t\r]*$`)

// CoAuthor is a co-author credited in a commit message trailer.
type CoAuthor struct {
	Name  string
	Email string
}

// ParseCoAuthors returns the Co-authored-by trailers of a commit message in
// order of appearance.
func ParseCoAuthors(message string) []CoAuthor {
	matches := coAuthorTrailer.FindAllStringSubmatch(message, -1)
	coAuthors := make([]CoAuthor, 0, len(matches))
	for _, m := range matches {
		coAuthors = append(coAuthors, CoAuthor{Name: m[1], Email: m[2]})
	}
	return coAuthors
}

// CollectContributors lists every commit author and co-author once. Identities
// are keyed by the exact email address, falling back to the GitHub account
// and then the name when a commit carries no email. Addresses differing only
// in case stay separate contributors since user records and approval lists
// compare them exactly.
func CollectContributors(commits []githubapp.Commit) []coverage.Contributor {
	var contributors []coverage.Contributor
	index := make(map[string]int)

	add := func(c coverage.Contributor) {
		key := contributorKey(c)
		if key == "" {
			return
		}
		if i, ok := index[key]; ok {
			existing := &contributors[i]
			if existing.Login == "" && c.Login != "" {
				existing.Login = c.Login
				existing.GitHubID = c.GitHubID
			}
			if existing.Name == "" {
				existing.Name = c.Name
			}
			return
		}
		index[key] = len(contributors)
		contributors = append(contributors, c)
	}

	for _, commit := range commits {
		add(coverage.Contributor{
			Name:     commit.AuthorName,
			Email:    commit.AuthorEmail,
			Login:    commit.AuthorLogin,
			GitHubID: commit.AuthorID,
		})
		for _, co := range ParseCoAuthors(commit.Message) {
			add(coverage.Contributor{Name: co.Name, Email: co.Email})
		}
	}
	return contributors
}

func contributorKey(c coverage.Contributor) string {
	switch {
	case c.Email != "":
		return "email:" + c.Email
	case c.GitHubID != 0:
		return "github:" + strconv.FormatInt(c.GitHubID, 10)
	case c.Login != "":
		return "login:" + strings.ToLower(c.Login)
	case c.Name != "":
		return "name:" + c.Name
	}
	return ""
}
