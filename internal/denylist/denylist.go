// Package denylist tracks contract addresses the operator has chosen to
// skip entirely, the way que-pasa's hard-coded contract_denylist module did,
// generalized into an operator-supplied list (config file / --denylist-path)
// instead of a compiled-in constant.
package denylist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"tzindexer/internal/ixerr"
)

// List is a static set of denylisted contract addresses, consulted for each
// active contract of every block the pipeline processes.
type List struct {
	log     *zap.Logger
	entries map[string]struct{}
}

// New builds a List from addresses already loaded into config (e.g. the
// config file's `denylist:` entries, or CONTRACT_ID-adjacent flags).
func New(log *zap.Logger, addresses []string) *List {
	l := &List{log: log, entries: make(map[string]struct{}, len(addresses))}
	for _, addr := range addresses {
		l.add(addr)
	}
	return l
}

// LoadFile reads one contract address per line from path, skipping blank
// lines and lines starting with '#', and merges them into addresses before
// constructing the List. This is the generalization of que-pasa's one
// compiled-in KT1 address into an operator-editable file.
func LoadFile(log *zap.Logger, path string, addresses []string) (*List, error) {
	l := New(log, addresses)
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Configuration, "denylist.LoadFile", fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.add(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, ixerr.Wrap(ixerr.Configuration, "denylist.LoadFile", fmt.Errorf("reading %s: %w", path, err))
	}
	return l, nil
}

func (l *List) add(addr string) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	l.entries[addr] = struct{}{}
}

// IsDenylisted reports whether address should be skipped, logging a warning
// the first time it is asked about (and every time thereafter — que-pasa's
// own is_contract_denylisted warns unconditionally on every hit, not just
// the first).
func (l *List) IsDenylisted(address string) bool {
	_, denylisted := l.entries[address]
	if denylisted && l.log != nil {
		l.log.Warn("ignoring denylisted contract", zap.String("contract", address))
	}
	return denylisted
}

// Len reports how many addresses are currently denylisted.
func (l *List) Len() int {
	return len(l.entries)
}
