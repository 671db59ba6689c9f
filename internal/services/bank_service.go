package services

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
)

// Bank is one payout destination supported by the withdrawal rails.
type Bank struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	LogoData string `json:"logoData"`
}

const (
	logosDir = "./static/bank-logos"
	demoSVG  = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M100 60c-22.1 0-40 17.9-40 40s17.9 40 40 40 40-17.9 40-40-17.9-40-40-40zm0 65c-13.8 0-25-11.2-25-25s11.2-25 25-25 25 11.2 25 25-11.2 25-25 25z" fill="#999"/><text x="100" y="170" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">BANK</text></svg>`
)

var bankLogos = map[string]string{
	"044": "access-bank.svg",
	"023": "citibank.svg",
	"050": "ecobank.svg",
	"070": "fidelity.svg",
	"011": "firstbank.svg",
	"214": "fcmb.svg",
	"058": "gtbank.svg",
	"301": "jaiz.svg",
	"082": "keystone.svg",
	"076": "polaris.svg",
	"101": "providus.svg",
	"221": "stanbic.svg",
	"068": "standard-chartered.svg",
	"232": "sterling.svg",
	"032": "union.svg",
	"033": "uba.svg",
	"215": "unity.svg",
	"035": "wema.svg",
	"057": "zenith.svg",
	"50211": "kuda.svg",
	"090405": "moniepoint.svg",
	"100002": "paga.svg",
	"110005": "paycom.svg",
}

var payoutBanks = []Bank{
	{Code: "044", Name: "Access Bank"},
	{Code: "023", Name: "Citibank Nigeria"},
	{Code: "050", Name: "Ecobank Nigeria"},
	{Code: "070", Name: "Fidelity Bank"},
	{Code: "011", Name: "First Bank of Nigeria"},
	{Code: "214", Name: "First City Monument Bank"},
	{Code: "058", Name: "Guaranty Trust Bank"},
	{Code: "301", Name: "Jaiz Bank"},
	{Code: "082", Name: "Keystone Bank"},
	{Code: "076", Name: "Polaris Bank"},
	{Code: "101", Name: "Providus Bank"},
	{Code: "221", Name: "Stanbic IBTC Bank"},
	{Code: "068", Name: "Standard Chartered Bank"},
	{Code: "232", Name: "Sterling Bank"},
	{Code: "032", Name: "Union Bank of Nigeria"},
	{Code: "033", Name: "United Bank For Africa"},
	{Code: "215", Name: "Unity Bank"},
	{Code: "035", Name: "Wema Bank"},
	{Code: "057", Name: "Zenith Bank"},
	{Code: "50211", Name: "Kuda Bank"},
	{Code: "090405", Name: "Moniepoint MFB"},
	{Code: "100002", Name: "Paga"},
	{Code: "110005", Name: "OPay"},
}

type BankService struct{}

func NewBankService() *BankService {
	return &BankService{}
}

// GetAllBanks lists supported payout banks
// @Summary List payout banks
// @Description Get the list of banks supported as withdrawal destinations
// @Tags banks
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /banks [get]
func (s *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	banks := make([]Bank, len(payoutBanks))
	copy(banks, payoutBanks)

	for i := range banks {
		banks[i].LogoData = loadBankLogo(banks[i].Code)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    banks,
		"count":   len(banks),
	})
}

// LookupBank returns the bank for a payout code, or false when unsupported.
func LookupBank(code string) (Bank, bool) {
	for _, bank := range payoutBanks {
		if bank.Code == code {
			return bank, true
		}
	}
	return Bank{}, false
}

func loadBankLogo(code string) string {
	filename, ok := bankLogos[code]
	if !ok {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(demoSVG))
	}

	data, err := os.ReadFile(filepath.Join(logosDir, filename))
	if err != nil {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(demoSVG))
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data)
}
