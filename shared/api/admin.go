package api

import "github.com/itchan-dev/ideamarket/shared/domain"

type RevokeTokensResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	UserId  domain.UserId `json:"userId"`
}

type SweepResponse struct {
	Success bool  `json:"success"`
	Removed int64 `json:"removed"`
}
