// Package auth stores named Instagram cookie profiles.
//
// Profiles are looked up in the environment (INSTAGRAM_COOKIES), then the
// system keyring, then an AES-GCM encrypted file under the user's config
// directory. New profiles go to the first writable store.
package auth
