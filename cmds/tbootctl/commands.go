package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/johnrichardrinehart/tinyboot/pkg/bless"
	"github.com/johnrichardrinehart/tinyboot/pkg/bundle"
	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/crypto"
	"github.com/johnrichardrinehart/tinyboot/pkg/handoff"
	"github.com/johnrichardrinehart/tinyboot/pkg/install"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
)

func openStore() (catalog.Store, *ledger.Ledger, error) {
	s := catalog.Store{Dir: *storeDir}
	l, err := ledger.Open(s.LedgerPath())
	return s, l, err
}

func runInstall() error {
	s, l, err := openStore()
	if err != nil {
		return err
	}
	var pcr *uint32
	if *installMeasure {
		v := uint32(*installMeasurePCR)
		pcr = &v
	}
	_, err = install.Install(s, l, install.Options{
		ID:             *installID,
		Kernel:         *installKernel,
		Initrd:         *installInitrd,
		DeviceTree:     *installDeviceTree,
		Cmdline:        *installCmdline,
		PrivateKey:     *installPrivKey,
		PublicKey:      *installPubKey,
		KeyType:        catalog.KeyType(*installKeyType),
		Password:       []byte(*installPassphrase),
		MeasurePCR:     pcr,
		Priority:       *installPriority,
		MaxTries:       *installMaxTries,
		TimeoutSeconds: *installTimeout,
	})
	return err
}

func runImport() error {
	s, l, err := openStore()
	if err != nil {
		return err
	}
	m, dir, err := bundle.Unpack(*importBundle, *importPubKey)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	opts := install.Options{
		ID:             m.ID,
		Kernel:         bundle.PayloadPath(dir, bundle.DefaultKernelPath, m.Kernel),
		Initrd:         bundle.PayloadPath(dir, bundle.DefaultInitrdPath, m.Initrd),
		DeviceTree:     bundle.PayloadPath(dir, bundle.DefaultDeviceTreePath, m.DeviceTree),
		Cmdline:        m.Cmdline,
		PrivateKey:     *importPrivKey,
		PublicKey:      *importPubKey,
		KeyType:        catalog.KeyTypeED25519,
		Password:       []byte(*importPassphrase),
		Priority:       m.Priority,
		MaxTries:       m.MaxTries,
		TimeoutSeconds: -1,
	}
	if *importPrivKey == "" {
		// public key only verifies the bundle; the entry installs permissive
		opts.PublicKey = ""
		opts.KeyType = ""
	}
	_, err = install.Install(s, l, opts)
	return err
}

func runRemove() error {
	s, l, err := openStore()
	if err != nil {
		return err
	}
	return install.Remove(s, l, *removeID)
}

func runList() error {
	s, l, err := openStore()
	if err != nil {
		return err
	}
	entries, err := catalog.LoadEntries(s.EntriesDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := ledger.StatusUnverified
		var attempts uint32
		if r, ok := l.Record(e.ID); ok {
			status = r.Status
			attempts = r.Attempts
		}
		fmt.Printf("%s\tpriority=%d\tstatus=%s\tattempts=%d/%d\tkernel=%s\n",
			e.ID, e.Priority, status, attempts, e.MaxTries, e.Kernel)
	}
	return nil
}

func runBless() error {
	s, l, err := openStore()
	if err != nil {
		return err
	}
	marker, err := handoff.Read(s.MarkerPath())
	if err != nil {
		return err
	}
	if *blessEntry != "" {
		marker = &handoff.Marker{EntryID: *blessEntry}
	}
	if marker == nil {
		return errors.New("no launch marker and no --entry given, nothing to bless")
	}
	return bless.Commit(l, s.MarkerPath(), marker, bless.Verdict(*blessVerdict))
}

func runGenKeys() error {
	switch catalog.KeyType(*genkeysType) {
	case catalog.KeyTypeRSA:
		return crypto.GenerateRSAKeys([]byte(*genkeysPassphrase), *genkeysPrivate, *genkeysPublic)
	case catalog.KeyTypeED25519:
		return crypto.GenerateED25519Keys([]byte(*genkeysPassphrase), *genkeysPrivate, *genkeysPublic)
	default:
		return fmt.Errorf("unknown key type %q", *genkeysType)
	}
}

func runPack() error {
	m := bundle.Manifest{
		ID:       *packID,
		Cmdline:  *packCmdline,
		Priority: *packPriority,
		MaxTries: *packMaxTries,
	}
	if *packKernel != "" {
		m.Kernel = filepath.Base(*packKernel)
	}
	if *packInitrd != "" {
		m.Initrd = filepath.Base(*packInitrd)
	}
	if *packDeviceTree != "" {
		m.DeviceTree = filepath.Base(*packDeviceTree)
	}
	return bundle.Pack(*packOutput, m, *packKernel, *packInitrd, *packDeviceTree, *packPrivKey, []byte(*packPassphrase))
}

func runUnpack() error {
	m, dir, err := bundle.Unpack(*unpackBundle, *unpackPubKey)
	if err != nil {
		return err
	}
	fmt.Printf("Bundle for entry %s unpacked into %s\n", m.ID, dir)
	fmt.Printf("kernel=%s initrd=%s devicetree=%s cmdline=%q priority=%d max-tries=%d\n",
		m.Kernel, m.Initrd, m.DeviceTree, m.Cmdline, m.Priority, m.MaxTries)
	return nil
}
