// Package loader reads operation input: one op per line, // comments and
// blank lines ignored, <END> delimiting cases in a batch file.
package loader

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const caseDelimiter = "<END>"

// Case is one test case's operation lines, in submission order.
type Case []string

// Load splits r into cases. A trailing case without a closing <END> is kept;
// empty cases (for example a file ending in <END>) are dropped.
func Load(r io.Reader) ([]Case, error) {
	var (
		cases []Case
		cur   Case
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if line == caseDelimiter {
			if len(cur) > 0 {
				cases = append(cases, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(cur) > 0 {
		cases = append(cases, cur)
	}
	return cases, nil
}

// LoadFile is Load over a file path.
func LoadFile(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
