package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/orchestrator"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Send validates the request and relays it through the orchestrator.
// A locked wallet yields a response with status pin_required and no error.
func (s *Service) Send(ctx context.Context, walletID string, req model.SendRequest) (*model.SendResponse, error) {
	intent, err := parseIntent(walletID, req)
	if err != nil {
		return nil, err
	}

	result, err := s.orch.SendTransaction(ctx, intent)
	if err != nil {
		return nil, err
	}
	if result.Status == orchestrator.StatusPinRequired {
		return &model.SendResponse{Status: string(result.Status)}, nil
	}

	resp := &model.SendResponse{
		Status:    string(result.Status),
		TxID:      result.TxID.Hex(),
		Sponsored: result.Sponsored,
	}
	if result.FeeCost != nil {
		resp.FeeCost = common.WeiToNative(result.FeeCost)
	}
	if result.Nonce != nil {
		resp.Nonce = result.Nonce.String()
	}
	if result.Funding != nil && !result.Funding.AlreadyFunded {
		resp.FundingTx = result.Funding.TxID.Hex()
	}
	return resp, nil
}

func parseIntent(walletID string, req model.SendRequest) (orchestrator.Intent, error) {
	to := strings.TrimSpace(req.ToAddress)
	if !crypto.ValidateAddress(to) {
		return orchestrator.Intent{}, ErrInvalidAddress
	}

	amount, err := common.NativeToWei(strings.TrimSpace(req.Amount))
	if err != nil {
		return orchestrator.Intent{}, ErrInvalidAmount
	}

	var data []byte
	if req.Data != "" {
		data, err = hexutil.Decode(req.Data)
		if err != nil {
			return orchestrator.Intent{}, fmt.Errorf("invalid call data: %w", err)
		}
	}

	return orchestrator.Intent{
		WalletID: walletID,
		To:       ethcommon.HexToAddress(to),
		Amount:   amount,
		Data:     data,
	}, nil
}
