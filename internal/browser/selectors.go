package browser

// Selectors names every DOM hook the agent relies on. They are external
// configuration: when the game's HTML changes, only this table moves.
type Selectors struct {
	// Login page
	LoginUsername string `yaml:"login_username"`
	LoginPassword string `yaml:"login_password"`
	LoginSubmit   string `yaml:"login_submit"`

	// Authenticated markers
	LogoutLink  string `yaml:"logout_link"`
	CashLabel   string `yaml:"cash_label"`
	LevelLabel  string `yaml:"level_label"`
	PlayerName  string `yaml:"player_name"`
	OverlayBox  string `yaml:"overlay_box"`
	OverlayKill string `yaml:"overlay_kill"`

	// Bank page
	BankBalance       string `yaml:"bank_balance"`
	BankWithdrawInput string `yaml:"bank_withdraw_input"`
	BankWithdrawBtn   string `yaml:"bank_withdraw_btn"`
	BankWithdrawAll   string `yaml:"bank_withdraw_all"`
	BankDepositInput  string `yaml:"bank_deposit_input"`
	BankDepositBtn    string `yaml:"bank_deposit_btn"`
	BankDepositAll    string `yaml:"bank_deposit_all"`

	// Inventory / storage
	InventorySlots    string `yaml:"inventory_slots"`
	InventoryCounter  string `yaml:"inventory_counter"`
	StorageCounter    string `yaml:"storage_counter"`
	StorageDepositAll string `yaml:"storage_deposit_all"`
	StorageTakeAll    string `yaml:"storage_take_all"`

	// Marketplace
	BuyTab           string `yaml:"buy_tab"`
	SellTab          string `yaml:"sell_tab"`
	SearchInput      string `yaml:"search_input"`
	SearchButton     string `yaml:"search_button"`
	ListingRows      string `yaml:"listing_rows"`
	RowItemName      string `yaml:"row_item_name"`
	RowSeller        string `yaml:"row_seller"`
	RowPrice         string `yaml:"row_price"`
	RowBuyButton     string `yaml:"row_buy_button"`
	ConfirmBox       string `yaml:"confirm_box"`
	ConfirmYes       string `yaml:"confirm_yes"`
	SellContextMenu  string `yaml:"sell_context_menu"`
	SellPriceInput   string `yaml:"sell_price_input"`
	SellConfirmBtn   string `yaml:"sell_confirm_btn"`
	SellingSlotsUsed string `yaml:"selling_slots_used"`
}

// DefaultSelectors returns the selector table for the current game markup.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginUsername: `input[name="username"]`,
		LoginPassword: `input[name="password"]`,
		LoginSubmit:   `input[type="submit"]`,

		LogoutLink:  `a[href*="logout"]`,
		CashLabel:   `#sidebar .cash`,
		LevelLabel:  `#sidebar .level`,
		PlayerName:  `#sidebar .playerName`,
		OverlayBox:  `.fancybox-overlay`,
		OverlayKill: `.fancybox-close`,

		BankBalance:       `#bankBalance`,
		BankWithdrawInput: `input[name="withdrawal"]`,
		BankWithdrawBtn:   `button[name="withdraw"]`,
		BankWithdrawAll:   `button[name="withdrawAll"]`,
		BankDepositInput:  `input[name="deposit"]`,
		BankDepositBtn:    `button[name="deposit"]`,
		BankDepositAll:    `button[name="depositAll"]`,

		InventorySlots:    `#inventory td.validSlot`,
		InventoryCounter:  `#inventoryUsed`,
		StorageCounter:    `#storageUsed`,
		StorageDepositAll: `button[name="storeAll"]`,
		StorageTakeAll:    `button[name="takeAll"]`,

		BuyTab:           `#loadBuying`,
		SellTab:          `#loadSelling`,
		SearchInput:      `#searchField`,
		SearchButton:     `#makeSearch`,
		ListingRows:      `#itemDisplay tr.fakeItem`,
		RowItemName:      `td.itemName`,
		RowSeller:        `td.seller`,
		RowPrice:         `td.salePrice`,
		RowBuyButton:     `button[data-action="buyItem"]`,
		ConfirmBox:       `#gamecontent .prompt`,
		ConfirmYes:       `#gamecontent button.yes`,
		SellContextMenu:  `#contextMenu a[data-action="sell"]`,
		SellPriceInput:   `#gamecontent input[name="price"]`,
		SellConfirmBtn:   `#gamecontent button[name="confirmSale"]`,
		SellingSlotsUsed: `#sellingSlots`,
	}
}
