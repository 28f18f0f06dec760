package directory

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Directory for tests and single-node dev setups.
type Memory struct {
	mu   sync.Mutex
	byID map[string]*Principal
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Principal)}
}

func (d *Memory) FindByUsername(_ context.Context, username string) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.byID {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (d *Memory) FindByID(_ context.Context, id string) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *Memory) ExistsByUsername(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.byID {
		if p.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (d *Memory) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	if phone == "" {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.byID {
		if p.PhoneNumber == phone {
			return true, nil
		}
	}
	return false, nil
}

func (d *Memory) Create(_ context.Context, p *Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.byID {
		if existing.Username == p.Username {
			return ErrDuplicateUsername
		}
		if p.PhoneNumber != "" && existing.PhoneNumber == p.PhoneNumber {
			return ErrDuplicatePhone
		}
	}
	cp := *p
	d.byID[p.ID] = &cp
	return nil
}

func (d *Memory) Update(_ context.Context, p *Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[p.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range d.byID {
		if id == p.ID {
			continue
		}
		if existing.Username == p.Username {
			return ErrDuplicateUsername
		}
		if p.PhoneNumber != "" && existing.PhoneNumber == p.PhoneNumber {
			return ErrDuplicatePhone
		}
	}
	cp := *p
	d.byID[p.ID] = &cp
	return nil
}

func (d *Memory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; !ok {
		return ErrNotFound
	}
	delete(d.byID, id)
	return nil
}

func (d *Memory) List(_ context.Context, offset, limit int) ([]*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	all := make([]*Principal, 0, len(d.byID))
	for _, p := range d.byID {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
