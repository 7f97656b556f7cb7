// Package localstate holds the few values that survive a restart: the
// last-selected task id and the user's credentials.
//
// Both live in a storage.Store under fixed key names:
//
//	selectedTaskId   last task chosen in the panel (decimal string)
//	token            bearer token attached to backend calls
//	refresh_token    refresh token issued at login
//	user             JSON profile of the signed-in user
//
// Conversation text is never stored.
package localstate
