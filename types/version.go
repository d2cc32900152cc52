package types

// Version is the canonical project version, shared by the CLI and the
// IPC contract.
const Version = "1.3.1"

// ContractVersion is the IPC/trace contract version. It moves in lockstep
// with Version.
const ContractVersion = Version

// SearchVersion identifies the bundled pattern search driver.
const SearchVersion = "0.4.0"
