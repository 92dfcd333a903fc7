package main

import (
	"log"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/johnrichardrinehart/tinyboot/pkg/bless"
	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
)

const (
	// HelpText is the command line help
	HelpText = "A tool for managing tinyboot boot entries and the attempt ledger"
)

var goversion string

var (
	storeDir = kingpin.Flag("store", "Boot entry store directory").Default(catalog.DefaultStoreDir).String()

	installCmd        = kingpin.Command("install", "Install a boot entry")
	installID         = installCmd.Flag("id", "Entry id").Required().String()
	installKernel     = installCmd.Flag("kernel", "Kernel image path").Required().String()
	installInitrd     = installCmd.Flag("initrd", "Initrd image path").String()
	installDeviceTree = installCmd.Flag("devicetree", "Device tree path").String()
	installCmdline    = installCmd.Flag("cmdline", "Kernel command line").String()
	installPrivKey    = installCmd.Flag("private-key", "Private key used to sign the images").String()
	installPubKey     = installCmd.Flag("public-key", "Public key installed for verification").String()
	installKeyType    = installCmd.Flag("key-type", "Signature scheme (rsa or ed25519)").Default(string(catalog.KeyTypeED25519)).String()
	installPassphrase = installCmd.Flag("passphrase", "Passphrase for the private key").String()
	installMeasurePCR = installCmd.Flag("measure-pcr", "PCR index for measured boot").Int()
	installMeasure    = installCmd.Flag("measure", "Enable measured boot for this entry").Bool()
	installPriority   = installCmd.Flag("priority", "Selection priority, highest first").Int()
	installMaxTries   = installCmd.Flag("max-tries", "Boot attempts before the entry is considered bad").Default("3").Uint32()
	installTimeout    = installCmd.Flag("timeout", "Seconds to wait before launching the default entry").Default("-1").Int()

	importCmd        = kingpin.Command("import", "Install a boot entry from a signed bundle")
	importBundle     = importCmd.Arg("bundle", "Bundle file").Required().String()
	importPubKey     = importCmd.Flag("public-key", "Public key used to verify the bundle and installed for boot-time verification").String()
	importPrivKey    = importCmd.Flag("private-key", "Private key used to re-sign the installed images").String()
	importPassphrase = importCmd.Flag("passphrase", "Passphrase for the private key").String()

	removeCmd = kingpin.Command("remove", "Remove a boot entry and its attempt record")
	removeID  = removeCmd.Arg("id", "Entry id").Required().String()

	listCmd = kingpin.Command("list", "List installed entries with their ledger state")

	blessCmd     = kingpin.Command("bless", "Commit a verdict for the entry launched this boot")
	blessVerdict = blessCmd.Arg("verdict", "good or bad").Required().Enum(string(bless.VerdictGood), string(bless.VerdictBad))
	blessEntry   = blessCmd.Flag("entry", "Override the entry id instead of reading the launch marker").String()

	genkeysCmd        = kingpin.Command("genkeys", "Generate a signing keypair")
	genkeysType       = genkeysCmd.Flag("type", "Key type (rsa or ed25519)").Default(string(catalog.KeyTypeED25519)).String()
	genkeysPassphrase = genkeysCmd.Flag("passphrase", "Encrypt the private key").String()
	genkeysPrivate    = genkeysCmd.Arg("privateKey", "File path to write the private key").Required().String()
	genkeysPublic     = genkeysCmd.Arg("publicKey", "File path to write the public key").Required().String()

	packCmd        = kingpin.Command("pack", "Pack a boot entry into a signed bundle")
	packOutput     = packCmd.Arg("bundle", "Path to the output bundle").Required().String()
	packID         = packCmd.Flag("id", "Entry id").Required().String()
	packKernel     = packCmd.Flag("kernel", "Kernel image path").Required().String()
	packInitrd     = packCmd.Flag("initrd", "Initrd image path").String()
	packDeviceTree = packCmd.Flag("devicetree", "Device tree path").String()
	packCmdline    = packCmd.Flag("cmdline", "Kernel command line").String()
	packPriority   = packCmd.Flag("priority", "Selection priority").Int()
	packMaxTries   = packCmd.Flag("max-tries", "Boot attempts before the entry is considered bad").Default("3").Uint32()
	packPrivKey    = packCmd.Flag("private-key", "Private key used to sign the bundle").String()
	packPassphrase = packCmd.Flag("passphrase", "Passphrase for the private key").String()

	unpackCmd    = kingpin.Command("unpack", "Unpack a bundle and print its manifest")
	unpackBundle = unpackCmd.Arg("bundle", "Bundle file").Required().String()
	unpackPubKey = unpackCmd.Flag("public-key", "Public key used to verify the bundle").String()
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(goversion)
	kingpin.CommandLine.Help = HelpText

	var err error
	switch kingpin.Parse() {
	case "install":
		err = runInstall()
	case "import":
		err = runImport()
	case "remove":
		err = runRemove()
	case "list":
		err = runList()
	case "bless":
		err = runBless()
	case "genkeys":
		err = runGenKeys()
	case "pack":
		err = runPack()
	case "unpack":
		err = runUnpack()
	default:
		log.Fatal("Command not found")
	}
	if err != nil {
		log.Fatalln(err.Error())
	}
}
