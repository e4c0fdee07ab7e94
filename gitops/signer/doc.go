// Package signer provides git.Signer implementations.
//
// Both signers sign the commit object as git would encode
// it without its gpgsig header, so the signature verifies
// with "git verify-commit" once the commit is stored. PGP
// signs in process with an OpenPGP private key; Command
// pipes the payload to an external program such as
// "gpg --detach-sign --armor".
package signer
