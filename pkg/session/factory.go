package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/dictionary"
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/backkem/fix/pkg/store"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Application receives the callbacks of every session built.
	// Default: NullApplication
	Application Application

	// StoreFactory creates each session's MessageStore.
	// Default: store.MemoryStoreFactory
	StoreFactory store.Factory

	// LogFactory creates each session's Log. Default: NullLogFactory
	LogFactory LogFactory

	// Table, if set, registers every session built.
	Table *Table

	// Clock overrides time.Now for every session built.
	Clock func() time.Time
}

// Factory builds sessions from settings dictionaries.
type Factory struct {
	config FactoryConfig

	mu    sync.Mutex
	dicts map[string]message.Dictionary
}

// NewFactory creates a session factory.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Application == nil {
		cfg.Application = NullApplication{}
	}
	if cfg.StoreFactory == nil {
		cfg.StoreFactory = store.NewMemoryStoreFactory()
	}
	if cfg.LogFactory == nil {
		cfg.LogFactory = NullLogFactory{}
	}
	return &Factory{
		config: cfg,
		dicts:  make(map[string]message.Dictionary),
	}
}

// Create builds the session id from d. Invalid settings produce a
// config.Error.
func (f *Factory) Create(id sessionid.ID, d *config.Dictionary) (*Session, error) {
	settings, err := readSettings(id, d)
	if err != nil {
		return nil, config.NewError("session "+id.String(), err)
	}
	schedule, err := NewSchedule(d)
	if err != nil {
		return nil, config.NewError("session "+id.String(), err)
	}
	dict, err := f.loadDictionary(d)
	if err != nil {
		return nil, config.NewError("session "+id.String(), err)
	}

	ms, err := f.config.StoreFactory.Create(id)
	if err != nil {
		return nil, err
	}
	s, err := New(Config{
		ID:          id,
		Store:       ms,
		Log:         f.config.LogFactory.Create(id),
		Application: f.config.Application,
		Schedule:    schedule,
		Dictionary:  dict,
		Settings:    settings,
		Table:       f.config.Table,
		Clock:       f.config.Clock,
	})
	if err != nil {
		ms.Close()
		return nil, err
	}
	return s, nil
}

func readSettings(id sessionid.ID, d *config.Dictionary) (Settings, error) {
	var (
		st  Settings
		err error
	)
	if st.HeartBtInt, err = d.Seconds(config.HeartBtInt, config.DefaultHeartBtInt*time.Second); err != nil {
		return st, err
	}
	if st.LogonTimeout, err = d.Seconds(config.LogonTimeout, config.DefaultLogonTimeout*time.Second); err != nil {
		return st, err
	}
	if st.LogoutTimeout, err = d.Seconds(config.LogoutTimeout, config.DefaultLogoutTimeout*time.Second); err != nil {
		return st, err
	}
	for _, b := range []struct {
		key string
		def bool
		dst *bool
	}{
		{config.ResetOnLogon, false, &st.ResetOnLogon},
		{config.ResetOnLogout, false, &st.ResetOnLogout},
		{config.ResetOnDisconnect, false, &st.ResetOnDisconnect},
		{config.PersistMessages, true, &st.PersistMessages},
		{config.ValidateIncoming, true, &st.ValidateIncoming},
	} {
		if *b.dst, err = d.BoolDefault(b.key, b.def); err != nil {
			return st, err
		}
	}
	st.DefaultApplVerID = d.StringDefault(config.DefaultApplVerID, "")
	if id.IsFIXT() && st.DefaultApplVerID == "" {
		return st, fmt.Errorf("%w: %s", config.ErrMissingSetting, config.DefaultApplVerID)
	}
	return st, nil
}

// dictionary loads the DataDictionary file named in d, once per path.
func (f *Factory) loadDictionary(d *config.Dictionary) (message.Dictionary, error) {
	path := d.StringDefault(config.DataDictionary, "")
	if path == "" {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if dict, ok := f.dicts[path]; ok {
		return dict, nil
	}
	dict, err := dictionary.Load(path)
	if err != nil {
		return nil, err
	}
	f.dicts[path] = dict
	return dict, nil
}
