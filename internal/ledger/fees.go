package ledger

// Two fee schedules coexist, matching the two call sites in the product:
// Fee is the 1% schedule charged when a transaction is processed, and
// TransferFee is the 1-per-100 schedule quoted on the transfer entry
// screen and deducted from the recipient's side.

// Fee returns the fee charged for processing a transaction: 1% of the
// amount, rounded half-up, for outgoing transfers. Incoming transfers
// are free.
func Fee(amount int64, txType TransactionType) int64 {
	if txType != TypeSend {
		return 0
	}
	if amount <= 0 {
		return 0
	}
	return (amount + 50) / 100
}

// TransferFee returns the transfer-entry fee: 1 CFA per 100 CFA sent,
// rounded up.
func TransferFee(sendAmount int64) int64 {
	if sendAmount <= 0 {
		return 0
	}
	return (sendAmount + 99) / 100
}

// ReceiveAmount returns what the recipient gets for a given send amount,
// floored at zero.
func ReceiveAmount(sendAmount int64) int64 {
	received := sendAmount - TransferFee(sendAmount)
	if received < 0 {
		return 0
	}
	return received
}

// SendAmountFor returns the minimal send amount whose net, after the
// transfer-entry fee, covers the desired receive amount. The fee is a step
// function of the send amount, so this walks forward instead of inverting
// a closed form.
func SendAmountFor(desiredReceive int64) int64 {
	if desiredReceive <= 0 {
		return 0
	}
	sendAmount := desiredReceive
	for sendAmount-TransferFee(sendAmount) < desiredReceive {
		sendAmount++
	}
	return sendAmount
}
