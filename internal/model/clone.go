package model

// Clone returns a deep copy of the activity so callers outside the engine
// never share mutable slices with the authoritative record.
func (a *Activity) Clone() *Activity {
	cp := *a
	cp.Config = a.Config.clone()
	return &cp
}

// OptionByID returns the vote option with the given id, or nil.
func (c *Config) OptionByID(id string) *VoteOption {
	for i := range c.Options {
		if c.Options[i].ID == id {
			return &c.Options[i]
		}
	}
	return nil
}

// PrizeByID returns the prize with the given id, or nil.
func (c *Config) PrizeByID(id string) *Prize {
	for i := range c.Prizes {
		if c.Prizes[i].ID == id {
			return &c.Prizes[i]
		}
	}
	return nil
}

func (c Config) clone() Config {
	cp := c
	if c.Departments != nil {
		cp.Departments = append([]string(nil), c.Departments...)
	}
	if c.Options != nil {
		cp.Options = append([]VoteOption(nil), c.Options...)
	}
	if c.Prizes != nil {
		cp.Prizes = append([]Prize(nil), c.Prizes...)
	}
	if c.Fields != nil {
		cp.Fields = make([]FormField, len(c.Fields))
		for i, f := range c.Fields {
			if f.Options != nil {
				f.Options = append([]string(nil), f.Options...)
			}
			cp.Fields[i] = f
		}
	}
	return cp
}
