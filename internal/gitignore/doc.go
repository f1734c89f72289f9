// Package gitignore compiles gitwildmatch patterns, the syntax used by
// .gitignore files, into a path matcher.
//
// Collections select files with these patterns: a path is matched when
// the last pattern that applies to it is not a negation.
//
// Supported syntax:
//   - Wildcards (*, ?, **) and character classes ([a-z], [!0-9])
//   - Rooted patterns (/inbox/*.html)
//   - Negation patterns (!drafts/)
//   - Directory-only patterns (attachments/)
//
// Usage:
//
//	m, err := gitignore.Compile([]string{"*.html", "!drafts/"})
//	if err != nil {
//	    return err
//	}
//	if m.Match("2024/page.html", false) {
//	    // selected
//	}
package gitignore
