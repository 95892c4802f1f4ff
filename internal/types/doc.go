// Package types holds the websocket wire messages.
//
// Client -> Server
//
//	JoinTournament:  request_id, tournament_id
//	Deposit:         request_id, amount
//	Withdraw:        request_id, amount
//	UpdateProfile:   request_id, username, avatar?
//
// Server -> Client
//
//	StateSnapshot:   version, state, notice?   // notice is set after a rollback
//	Result:          request_id, state         // the mutation settled
//	Error:           request_id?, error
//
// state:
//
//	profile: { id, username, avatar, wallet_balance, games_played, wins, kills, is_admin, kd_ratio }
//	joined_tournaments: string[]
//	transactions: { id, type, amount, date, description, status }[] // newest first
package types
