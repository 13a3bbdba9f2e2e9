package wallet

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/model"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Balance returns the native balance of the smart-contract wallet, with its fiat value
// when a price source is configured. A failed price lookup leaves the fiat fields empty.
func (s *Service) Balance(ctx context.Context, walletID string) (*model.BalanceResponse, error) {
	record, err := s.lookup(ctx, walletID)
	if err != nil {
		return nil, err
	}
	walletAddress := ethcommon.HexToAddress(record.WalletAddress)

	balance, err := s.chain.GetBalance(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	resp := &model.BalanceResponse{
		WalletID:      record.ID,
		WalletAddress: walletAddress.Hex(),
		Native:        common.WeiToNative(balance),
	}
	if s.prices == nil {
		return resp, nil
	}

	rate, err := s.prices.GetRate(ctx)
	if err != nil {
		log.Warn().Err(err).Str("wallet_id", walletID).Msg("failed to get exchange rate")
		return resp, nil
	}
	fiat, err := common.FiatValue(balance, rate)
	if err != nil {
		log.Warn().Err(err).Str("rate", rate).Msg("failed to convert balance")
		return resp, nil
	}
	resp.Rate = rate
	resp.Fiat = fiat
	resp.FiatCurrency = s.prices.Currency()
	return resp, nil
}

// Relayer reports the sponsoring account's balance and its top-up address
func (s *Service) Relayer(ctx context.Context) (*model.RelayerResponse, error) {
	balance, err := s.agent.RelayerBalance(ctx)
	if err != nil {
		return nil, err
	}
	available, err := s.agent.Available(ctx)
	if err != nil {
		return nil, err
	}

	address := s.agent.Relayer().Address().Hex()
	qrCode, err := generateQRCode(address)
	if err != nil {
		return nil, err
	}
	return &model.RelayerResponse{
		Address:   address,
		Balance:   common.WeiToNative(balance),
		Reserve:   common.WeiToNative(s.agent.Reserve()),
		Available: common.WeiToNative(available),
		QR:        qrCode,
	}, nil
}

// TopUpQR renders a QR code for a top-up address
func TopUpQR(address string) (string, error) {
	return generateQRCode(address)
}
