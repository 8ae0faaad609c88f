package fault

// DefaultSignatures is the built-in ordered signature table.
// Specific phrasings come first; generic catch-alls last. The strings
// cover the pacman/yay family plus common apt/dnf wording for the
// same failure classes.
func DefaultSignatures() []Signature {
	return []Signature{
		// Dependency breakage: a pending upgrade would break a package
		// that depends on the current version.
		{Pattern: "breaks dependency", Kind: DependencyBreak},
		{Pattern: "dependency cycle detected", Kind: DependencyBreak},

		// Version conflicts between repository and installed packages.
		{Pattern: "conflicting dependencies", Kind: VersionConflict},
		{Pattern: "are in conflict", Kind: VersionConflict},
		{Pattern: "held broken packages", Kind: VersionConflict},

		// Signature/keyring trouble. Two phrasings of the same fault.
		{Pattern: "signature from", Kind: SignatureFailure},
		{Pattern: "invalid or corrupted package (PGP signature)", Kind: SignatureFailure},
		{Pattern: "signature verification failed", Kind: SignatureFailure},
		{Pattern: "key could not be looked up remotely", Kind: SignatureFailure},
		{Pattern: "NO_PUBKEY", Kind: SignatureFailure},

		// Mirror/database sync problems.
		{Pattern: "failed to synchronize all databases", Kind: SyncFailure},
		{Pattern: "failed retrieving file", Kind: SyncFailure},
		{Pattern: "Connection timed out", Kind: SyncFailure},
		{Pattern: "Temporary failure resolving", Kind: SyncFailure},
		{Pattern: "unable to lock database", Kind: SyncFailure},

		// Generic dependency wording. Must stay below the specific
		// dependency signatures above.
		{Pattern: "could not satisfy dependencies", Kind: GenericDependencyFailure},
		{Pattern: "unresolvable package conflicts", Kind: GenericDependencyFailure},
		{Pattern: "dependency problems", Kind: GenericDependencyFailure},
		{Pattern: `(?i)unmet dependenc`, Regex: true, Kind: GenericDependencyFailure},
	}
}
